// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package certificate implements the certificate registry. Certificates are
// keyed by the hash of their canonical payload and may be minted as a
// single-unit asset owned by the application.
package certificate

import (
	"github.com/algocampus/campusd/contract"
	"github.com/algocampus/campusd/ledger"
)

const (
	Kind = "certificate"
	Name = "CertificateRegistryContract"
)

const (
	MethodRegisterCert      = "register_cert"
	MethodRegisterCertAI    = "register_cert_ai"
	MethodReissueCert       = "reissue_cert"
	MethodReissueCertAI     = "reissue_cert_ai"
	MethodMintAndRegister   = "mint_and_register"
	MethodMintAndRegisterAI = "mint_and_register_ai"
	MethodVerifyCert        = "verify_cert"
)

const (
	ReasonAlreadyRegistered = "already registered"
	ReasonCertNotFound      = "cert not found"
	ReasonEmptyCertHash     = "empty cert hash"
	ReasonCertHashTooLong   = "cert hash too long"
)

// Minted certificate assets
const (
	AssetUnitName = "CERT"
	AssetName     = "AlgoCampusCert"
)

const (
	boxRecipient = "cr"
	boxAsset     = "ca"
	boxIssued    = "ct"

	maxCertHashLength = ledger.MaxBoxNameLength - len(boxRecipient)
)

// CertRecord is returned by verify_cert
type CertRecord struct {
	Recipient ledger.Address
	AssetID   uint64
	IssuedTs  uint64
}

func init() {
	ledger.RegisterApplication(Kind, New)
}

func New() ledger.Application {
	return contract.NewBase(contract.Methods{
		MethodRegisterCert:      registerCert,
		MethodRegisterCertAI:    registerCertAI,
		MethodReissueCert:       reissueCert,
		MethodReissueCertAI:     reissueCertAI,
		MethodMintAndRegister:   mintAndRegister,
		MethodMintAndRegisterAI: mintAndRegisterAI,
		MethodVerifyCert:        verifyCert,
	})
}

func certHashArg(c *contract.Call, i int) ([]byte, error) {
	hash, err := c.Args.Bytes(i)
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, ledger.Revert(ReasonEmptyCertHash)
	}
	if len(hash) > maxCertHashLength {
		return nil, ledger.Revert(ReasonCertHashTooLong)
	}
	return hash, nil
}

// parseRecord reads (cert_hash, recipient, asset_id, issued_ts)
func parseRecord(c *contract.Call) ([]byte, CertRecord, error) {
	var rec CertRecord
	hash, err := certHashArg(c, 0)
	if err != nil {
		return nil, rec, err
	}
	if rec.Recipient, err = c.Args.Address(1); err != nil {
		return nil, rec, err
	}
	if rec.AssetID, err = c.Args.Uint64(2); err != nil {
		return nil, rec, err
	}
	if rec.IssuedTs, err = c.Args.Uint64(3); err != nil {
		return nil, rec, err
	}
	return hash, rec, nil
}

func requireUnregistered(c *contract.Call, hash []byte) error {
	exists, err := c.Boxes.Has(ledger.BoxName(boxRecipient, hash))
	if err != nil {
		return err
	}
	if exists {
		return ledger.Revert(ReasonAlreadyRegistered)
	}
	return nil
}

func storeRecord(c *contract.Call, hash []byte, rec CertRecord) error {
	if err := c.Boxes.Put(ledger.BoxName(boxRecipient, hash), rec.Recipient[:]); err != nil {
		return err
	}
	if err := c.Boxes.PutUint64(ledger.BoxName(boxAsset, hash), rec.AssetID); err != nil {
		return err
	}
	return c.Boxes.PutUint64(ledger.BoxName(boxIssued, hash), rec.IssuedTs)
}

func registerCert(c *contract.Call) (any, error) {
	if err := c.Auth.RequireAdminOrFaculty(); err != nil {
		return nil, err
	}
	hash, rec, err := parseRecord(c)
	if err != nil {
		return nil, err
	}
	if err := requireUnregistered(c, hash); err != nil {
		return nil, err
	}
	return true, storeRecord(c, hash, rec)
}

func registerCertAI(c *contract.Call) (any, error) {
	if err := c.Auth.RequireAdminOrFaculty(); err != nil {
		return nil, err
	}
	hash, rec, err := parseRecord(c)
	if err != nil {
		return nil, err
	}
	if err := requireUnregistered(c, hash); err != nil {
		return nil, err
	}
	intentHash, err := c.Args.Bytes(4)
	if err != nil {
		return nil, err
	}
	if err := c.ConsumeIntent(intentHash); err != nil {
		return nil, err
	}
	return true, storeRecord(c, hash, rec)
}

// reissueCert overwrites an existing entry or creates a new one
func reissueCert(c *contract.Call) (any, error) {
	if err := c.Auth.RequireAdmin(); err != nil {
		return nil, err
	}
	hash, rec, err := parseRecord(c)
	if err != nil {
		return nil, err
	}
	return true, storeRecord(c, hash, rec)
}

func reissueCertAI(c *contract.Call) (any, error) {
	if err := c.Auth.RequireAdmin(); err != nil {
		return nil, err
	}
	hash, rec, err := parseRecord(c)
	if err != nil {
		return nil, err
	}
	intentHash, err := c.Args.Bytes(4)
	if err != nil {
		return nil, err
	}
	if err := c.ConsumeIntent(intentHash); err != nil {
		return nil, err
	}
	return true, storeRecord(c, hash, rec)
}

type mintParams struct {
	hash        []byte
	recipient   ledger.Address
	metadataURL string
	issuedTs    uint64
}

func parseMint(c *contract.Call) (mintParams, error) {
	var p mintParams
	var err error
	if p.hash, err = certHashArg(c, 0); err != nil {
		return p, err
	}
	if p.recipient, err = c.Args.Address(1); err != nil {
		return p, err
	}
	if p.metadataURL, err = c.Args.String(2); err != nil {
		return p, err
	}
	if p.issuedTs, err = c.Args.Uint64(3); err != nil {
		return p, err
	}
	return p, requireUnregistered(c, p.hash)
}

func mint(c *contract.Call, p mintParams) (uint64, error) {
	assetID, err := c.CreateAsset(ledger.AssetParams{
		UnitName:  AssetUnitName,
		AssetName: AssetName,
		URL:       p.metadataURL,
		Total:     1,
		Decimals:  0,
		Manager:   c.AppAddress,
		Reserve:   c.AppAddress,
	})
	if err != nil {
		return 0, err
	}
	err = storeRecord(c, p.hash, CertRecord{
		Recipient: p.recipient,
		AssetID:   assetID,
		IssuedTs:  p.issuedTs,
	})
	if err != nil {
		return 0, err
	}
	return assetID, nil
}

func mintAndRegister(c *contract.Call) (any, error) {
	if err := c.Auth.RequireAdminOrFaculty(); err != nil {
		return nil, err
	}
	p, err := parseMint(c)
	if err != nil {
		return nil, err
	}
	return mint(c, p)
}

func mintAndRegisterAI(c *contract.Call) (any, error) {
	if err := c.Auth.RequireAdminOrFaculty(); err != nil {
		return nil, err
	}
	p, err := parseMint(c)
	if err != nil {
		return nil, err
	}
	intentHash, err := c.Args.Bytes(4)
	if err != nil {
		return nil, err
	}
	if err := c.ConsumeIntent(intentHash); err != nil {
		return nil, err
	}
	return mint(c, p)
}

func verifyCert(c *contract.Call) (any, error) {
	hash, err := certHashArg(c, 0)
	if err != nil {
		return nil, err
	}
	recipient, ok, err := c.Boxes.Get(ledger.BoxName(boxRecipient, hash))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.Revert(ReasonCertNotFound)
	}
	var rec CertRecord
	if rec.Recipient, err = ledger.AddressFromBytes(recipient); err != nil {
		return nil, err
	}
	if rec.AssetID, _, err = c.Boxes.GetUint64(ledger.BoxName(boxAsset, hash)); err != nil {
		return nil, err
	}
	if rec.IssuedTs, _, err = c.Boxes.GetUint64(ledger.BoxName(boxIssued, hash)); err != nil {
		return nil, err
	}
	return rec, nil
}
