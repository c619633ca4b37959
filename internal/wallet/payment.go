package wallet

import (
	"crypto/ed25519"
	"encoding/json"

	"github.com/aurachain/node/internal/chainmodel"
	"github.com/aurachain/node/pkg/utils"
)

// ReturnPayment describes the change produced by a payment that did not
// consume its inputs exactly: the fresh TxIn referencing the over-consumed
// output, and the change amount sent to a newly generated address.
type ReturnPayment struct {
	TxIn   chainmodel.TxIn
	Amount TokenAmount
}

// PaymentResult is everything FetchInputsForPayment produces: the consumed
// inputs, and optionally the change output to append to the outgoing
// transaction plus the change metadata to persist once the containing
// block is observed.
type PaymentResult struct {
	Inputs       []chainmodel.TxIn
	ChangeOut    *chainmodel.TxOut
	ChangeAmount TokenAmount
	ChangeAddr   PaymentAddress
	ChangeKeys   AddressStore
}

// FetchInputsForPayment implements the specification's payment-construction
// algorithm (§4.4):
//  1. Load FundStore; fail with InsufficientFunds if running_total is short.
//  2. Walk transactions in ascending OutPoint order, accumulating amount.
//  3. Stop once the cumulative sum first reaches or exceeds amountRequired;
//     if it strictly exceeds, produce a change output to a fresh address.
//  4. Consumed outputs are removed from FundStore and their owning address
//     entries removed from AddressStore; running_total is updated to match.
func (w *WalletDB) FetchInputsForPayment(amountRequired TokenAmount) (*PaymentResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fundStore, err := w.getFundStoreLocked()
	if err != nil {
		return nil, err
	}
	if fundStore.RunningTotal < amountRequired {
		return nil, utils.NewError(utils.KindInsufficientFunds, "insufficient funds for payment", nil)
	}

	addressStores, err := w.getAddressStoresLocked()
	if err != nil {
		return nil, err
	}

	var (
		inputs       []chainmodel.TxIn
		amountMade   TokenAmount
		consumedOps  []chainmodel.OutPoint
		consumedAddr []string
		result       PaymentResult
	)

	for _, op := range fundStore.SortedOutPoints() {
		if amountMade == amountRequired {
			break
		}
		current := fundStore.Transactions[op]

		tstore, err := w.transactionStoreLocked(op)
		if err != nil {
			return nil, err
		}
		owner, ok := addressStores[tstore.Address]
		if !ok {
			return nil, utils.NewError(utils.KindStorage, "missing address keys for owned outpoint", nil)
		}

		if current+amountMade > amountRequired {
			diff := amountRequired - amountMade
			changeAmount := current - diff
			fundStore.RunningTotal -= TokenAmount(current)
			amountMade = amountRequired

			changeAddr, changeKeys, err := w.generatePaymentAddressLocked(addressStores)
			if err != nil {
				return nil, err
			}
			result.ChangeAmount = changeAmount
			result.ChangeAddr = changeAddr
			result.ChangeKeys = changeKeys
			changeOut := chainmodel.TxOut{
				Asset:   chainmodel.NewTokenAsset(uint64(changeAmount)),
				Address: changeAddr.Address,
			}
			result.ChangeOut = &changeOut
		} else {
			amountMade += current
			fundStore.RunningTotal -= TokenAmount(current)
		}

		inputs = append(inputs, constructTxIn(op, owner))

		consumedOps = append(consumedOps, op)
		consumedAddr = append(consumedAddr, tstore.Address)
		delete(fundStore.Transactions, op)
	}

	for _, op := range consumedOps {
		if err := w.kv.Delete(ColumnTransaction, []byte(encodeOutPointKey(op))); err != nil {
			return nil, utils.NewError(utils.KindStorage, "delete consumed transaction store entry", err)
		}
	}
	for _, addr := range consumedAddr {
		delete(addressStores, addr)
	}
	if err := w.setAddressStoresLocked(addressStores); err != nil {
		return nil, err
	}
	if err := w.setFundStoreLocked(fundStore); err != nil {
		return nil, err
	}

	result.Inputs = inputs
	return &result, nil
}

func (w *WalletDB) transactionStoreLocked(op chainmodel.OutPoint) (TransactionStore, error) {
	data, ok, err := w.kv.Get(ColumnTransaction, []byte(encodeOutPointKey(op)))
	if err != nil {
		return TransactionStore{}, utils.NewError(utils.KindStorage, "read transaction store", err)
	}
	if !ok {
		return TransactionStore{}, utils.NewError(utils.KindStorage, "outpoint missing from transaction store", nil)
	}
	var ts TransactionStore
	if err := json.Unmarshal(data, &ts); err != nil {
		return TransactionStore{}, utils.NewError(utils.KindStorage, "decode transaction store", err)
	}
	return ts, nil
}

// generatePaymentAddressLocked creates a fresh keypair and inserts it into
// the in-memory addressStores map the caller will persist; it does not
// independently write to the KV store, since FetchInputsForPayment batches
// the whole address-store mutation into one write.
func (w *WalletDB) generatePaymentAddressLocked(addressStores map[string]AddressStore) (PaymentAddress, AddressStore, error) {
	pub, priv, err := GenerateKeypair()
	if err != nil {
		return PaymentAddress{}, AddressStore{}, utils.NewError(utils.KindStorage, "generate keypair", err)
	}
	addr := ConstructAddress(pub, NetworkVersion)
	keys := AddressStore{PublicKey: pub, SecretKey: priv}
	addressStores[addr.Address] = keys
	return addr, keys, nil
}

// constructTxIn signs op.THash with the secret key owning op and returns
// the resulting TxIn, matching sign_detached(tx_hash.t_hash, secret_key) in
// the original wallet.
func constructTxIn(op chainmodel.OutPoint, owner AddressStore) chainmodel.TxIn {
	sig := ed25519.Sign(owner.SecretKey, []byte(op.THash))
	return chainmodel.TxIn{
		PrevOut:    op,
		Signatures: [][]byte{sig},
		PubKeys:    [][]byte{owner.PublicKey},
	}
}
