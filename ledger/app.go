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

package ledger

import (
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// Application is the code behind a deployed app id. Applications keep no
// state of their own: everything lives in boxes so a reopened ledger can
// rebind an app id to a fresh instance.
type Application interface {
	// Create runs once, in the deploying transaction
	Create(*CallContext) error
	// Invoke dispatches a method call. Any error aborts the call.
	Invoke(ctx *CallContext, method string, args Args) (any, error)
}

type ApplicationFactory func() Application

var (
	appRegistry      = map[string]ApplicationFactory{}
	appRegistryMutex sync.RWMutex
)

// RegisterApplication makes an application kind available to Deploy
func RegisterApplication(kind string, factory ApplicationFactory) {
	appRegistryMutex.Lock()
	defer appRegistryMutex.Unlock()
	appRegistry[kind] = factory
}

func lookupApplication(kind string) (ApplicationFactory, error) {
	appRegistryMutex.RLock()
	defer appRegistryMutex.RUnlock()
	factory, ok := appRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAppKind, kind)
	}
	return factory, nil
}

// Payment is a payment transaction grouped with an application call
type Payment struct {
	Receiver Address
	Amount   uint64
}

// AssetParams describes an asset created by an inner transaction
type AssetParams struct {
	UnitName  string
	AssetName string
	URL       string
	Total     uint64
	Decimals  uint32
	Manager   Address
	Reserve   Address
	Creator   Address
}

type AppInfo struct {
	Kind    string
	ID      uint64
	Creator Address
	Address Address
}

// CallContext is what an application sees while one call executes
type CallContext struct {
	Boxes      *BoxStore
	txn        *badger.Txn
	Group      []Payment
	Round      uint64
	AppID      uint64
	Sender     Address
	Creator    Address
	AppAddress Address
	readOnly   bool
}

// ReadOnly reports whether the call runs without the ability to write
func (c *CallContext) ReadOnly() bool {
	return c.readOnly
}

// CreateAsset issues an inner asset creation transaction from the
// application account and returns the new asset id
func (c *CallContext) CreateAsset(params AssetParams) (uint64, error) {
	if c.readOnly {
		return 0, errors.New("asset creation in read-only call")
	}
	assetID, err := nextCounter(c.txn, keyNextAsset, firstAssetID)
	if err != nil {
		return 0, err
	}
	params.Creator = c.AppAddress
	if err := putValue(c.txn, assetKey(assetID), &params); err != nil {
		return 0, err
	}
	return assetID, nil
}
