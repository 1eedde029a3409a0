package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/cexcore/custody/lib/chain/types"
	"github.com/cexcore/custody/lib/msg"
	"github.com/cexcore/custody/lib/store"
)

// ErrNoUser is returned to client requests missing the user path segment.
var ErrNoUser = errors.New("undefined user - missing in uri")

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// chainInfo describes one supported chain to API clients.
type chainInfo struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Family    string `json:"family"`
	Decimals  int32  `json:"decimals"`
	Connected bool   `json:"connected"` // whether a node client is configured
}

// walletReply carries the deposit addresses of a wallet. SeedPhrase is set only on the response of
// the request that created the wallet; it is never retrievable again.
type walletReply struct {
	Addresses  map[string]string `json:"addresses"`
	SeedPhrase string            `json:"seed_phrase,omitempty"`
}

// statusFor maps store errors to http status codes.
func statusFor(err error) int {
	if errors.Is(err, store.ErrWalletNotFound) || errors.Is(err, store.ErrUserNotFound) {
		return http.StatusNotFound
	}

	return http.StatusBadRequest
}

// homeHandler just replies a welcome message to the client.
func (w *Wallet) homeHandler(rw http.ResponseWriter, r *http.Request) {
	var res Response
	// log request
	log.Printf("httpreq from %v %s\n", r.RemoteAddr, r.RequestURI)
	// just reply a welcome message
	res.Body = "Hello, this is your custody wallet service!"
	// reply
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	_ = json.NewEncoder(rw).Encode(res)
}

// chainsHandler replies the chain registry, flagging the chains this service holds a node client for.
func (w *Wallet) chainsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	pl := make([]chainInfo, 0, len(types.Registry()))

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(http.StatusBadRequest)
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(pl)
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s res:%+v err:%e\n", r.RemoteAddr, r.RequestURI, pl, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	for _, spec := range types.Registry() {
		_, connected := w.bc[spec.Name]
		pl = append(pl, chainInfo{
			Name:      spec.Name,
			Symbol:    spec.Symbol,
			Family:    spec.Family,
			Decimals:  spec.Decimals,
			Connected: connected,
		})
	}
}

// addressesHandler replies the user's deposit addresses, creating the wallet first if the user has
// none. When this request creates the wallet, the one-time seed phrase is included in the reply and a
// watch request is published to the broker.
func (w *Wallet) addressesHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var pl walletReply

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(statusFor(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(pl)
			res.Body = string(tmp)
		}
		// log request, never the seed phrase
		log.Printf("httpreq from %v %s addrs:%+v err:%e\n", r.RemoteAddr, r.RequestURI, pl.Addresses, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	v := mux.Vars(r)

	user, ok := v["user"]
	if !ok || user == "" {
		err = ErrNoUser

		return
	}

	var wr store.Wallet

	wr, pl.SeedPhrase, err = w.wallets.Load(user)
	if err != nil {
		return
	}

	pl.Addresses = wr.Addresses

	if pl.SeedPhrase != "" { // this request created the wallet
		if errSend := w.mb.SendWalletReq(msg.WalletReq{UserID: user, Act: msg.WATCH}); errSend != nil {
			log.Printf("error sending wallet request for user %s:%e\n", user, errSend)
		}
	}
}

// resetHandler tombstones the user's wallet and replies the addresses and one-time seed phrase of the
// freshly generated replacement.
func (w *Wallet) resetHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var pl walletReply

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(statusFor(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(pl)
			res.Body = string(tmp)
		}
		// log request, never the seed phrase
		log.Printf("httpreq from %v %s addrs:%+v err:%e\n", r.RemoteAddr, r.RequestURI, pl.Addresses, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	v := mux.Vars(r)

	user, ok := v["user"]
	if !ok || user == "" {
		err = ErrNoUser

		return
	}

	var wr store.Wallet

	wr, pl.SeedPhrase, err = w.wallets.Reset(user)
	if err != nil {
		return
	}

	pl.Addresses = wr.Addresses

	if errSend := w.mb.SendWalletReq(msg.WalletReq{UserID: user, Act: msg.WATCH}); errSend != nil {
		log.Printf("error sending wallet request for user %s:%e\n", user, errSend)
	}
}

// balancesHandler replies the user's ledger balances per token symbol.
func (w *Wallet) balancesHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var bals map[string]decimal.Decimal

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(statusFor(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(bals)
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s bals:%v err:%e\n", r.RemoteAddr, r.RequestURI, bals, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	v := mux.Vars(r)

	user, ok := v["user"]
	if !ok || user == "" {
		err = ErrNoUser

		return
	}

	bals, err = w.db.GetBalances(user)
}

// transactionsHandler replies the user's transaction history, oldest first.
func (w *Wallet) transactionsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var txs []store.Transaction

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(statusFor(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(txs)
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s txs:%d err:%e\n", r.RemoteAddr, r.RequestURI, len(txs), err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	v := mux.Vars(r)

	user, ok := v["user"]
	if !ok || user == "" {
		err = ErrNoUser

		return
	}

	txs, err = w.db.ListTransactions(user)
}
