package wallet

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/cexcore/custody/lib/chain"
	"github.com/cexcore/custody/lib/chain/types"
	"github.com/cexcore/custody/lib/msg"
	"github.com/cexcore/custody/lib/store"
	"github.com/cexcore/custody/lib/store/db"
)

// stubBroker records published wallet requests.
type stubBroker struct {
	mu   sync.Mutex
	reqs []msg.WalletReq
}

func (b *stubBroker) Setup(interface{}) error { return nil }
func (b *stubBroker) Close() error            { return nil }

func (b *stubBroker) SendWalletReq(r msg.WalletReq) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reqs = append(b.reqs, r)

	return nil
}

func (b *stubBroker) GetDeposits(chain string, mut *sync.Mutex) (<-chan msg.Deposit, <-chan error, error) {
	return make(chan msg.Deposit), make(chan error), nil
}

func (b *stubBroker) GetWalletReqs(mut *sync.Mutex) (<-chan msg.WalletReq, <-chan error, error) {
	return make(chan msg.WalletReq), make(chan error), nil
}

func (b *stubBroker) SendDeposits(chain string, d []msg.Deposit) error { return nil }

func (b *stubBroker) sent() []msg.WalletReq {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]msg.WalletReq, len(b.reqs))
	copy(out, b.reqs)

	return out
}

func TestAPI(t *testing.T) {
	s, err := db.New(db.MEMORY, "")
	if err != nil {
		t.Fatalf("Error creating store:%e", err)
	}

	mb := &stubBroker{}

	enc := testCipher(t)
	wallets := NewWallets(s, NewGenerator(enc), enc)
	w := New(db.MEMORY, s, mb, map[string]chain.Chain{}, wallets)

	r := mux.NewRouter()
	r.HandleFunc("/", w.homeHandler)
	r.HandleFunc("/chains", w.chainsHandler).Methods("GET")
	r.HandleFunc("/users/{user}/addresses", w.addressesHandler).Methods("GET")
	r.HandleFunc("/users/{user}/wallet", w.resetHandler).Methods("DELETE")
	r.HandleFunc("/users/{user}/balances", w.balancesHandler).Methods("GET")
	r.HandleFunc("/users/{user}/transactions", w.transactionsHandler).Methods("GET")

	srv := httptest.NewServer(r)
	defer srv.Close()

	// chains replies the whole registry
	var chains []chainInfo

	status, err := getJSON(srv.URL+"/chains", &chains)
	if err != nil || status != http.StatusOK {
		t.Fatalf("Error getting chains:%e status:%d", err, status)
	}

	if len(chains) != len(types.Registry()) {
		t.Errorf("Error in chains:%d expected:%d", len(chains), len(types.Registry()))
	}

	for _, c := range chains {
		if c.Connected {
			t.Errorf("[%s] Error: no node client configured, must not report connected", c.Name)
		}
	}

	// first addresses request creates the wallet and hands out the seed phrase
	var created walletReply

	status, err = getJSON(srv.URL+"/users/user1/addresses", &created)
	if err != nil || status != http.StatusOK {
		t.Fatalf("Error getting addresses:%e status:%d", err, status)
	}

	if created.SeedPhrase == "" {
		t.Errorf("Error: creating request did not return the seed phrase")
	}

	if len(created.Addresses) != len(types.Registry()) {
		t.Errorf("Error in addresses:%d expected:%d", len(created.Addresses), len(types.Registry()))
	}

	// second request replies the same addresses without a seed phrase
	var loaded walletReply

	if status, err = getJSON(srv.URL+"/users/user1/addresses", &loaded); err != nil || status != http.StatusOK {
		t.Fatalf("Error getting addresses:%e status:%d", err, status)
	}

	if loaded.SeedPhrase != "" {
		t.Errorf("Error: seed phrase handed out twice")
	}

	if loaded.Addresses["ethereum"] != created.Addresses["ethereum"] {
		t.Errorf("Error in address:%s expected:%s", loaded.Addresses["ethereum"], created.Addresses["ethereum"])
	}

	// balances exist with zero values right after creation
	var bals map[string]string

	if status, err = getJSON(srv.URL+"/users/user1/balances", &bals); err != nil || status != http.StatusOK {
		t.Fatalf("Error getting balances:%e status:%d", err, status)
	}

	if len(bals) != len(types.Symbols()) {
		t.Errorf("Error in balances:%d expected:%d", len(bals), len(types.Symbols()))
	}

	// unknown users have no ledger
	if status, _ = getJSON(srv.URL+"/users/nobody/balances", &bals); status != http.StatusNotFound {
		t.Errorf("Error in status:%d expected:%d", status, http.StatusNotFound)
	}

	// transaction history starts empty
	var txs []store.Transaction

	if status, err = getJSON(srv.URL+"/users/user1/transactions", &txs); err != nil || status != http.StatusOK {
		t.Fatalf("Error getting transactions:%e status:%d", err, status)
	}

	if len(txs) != 0 {
		t.Errorf("Error in transactions:%d expected:0", len(txs))
	}

	// reset replies a fresh wallet and seed phrase
	var reset walletReply

	if status, err = deleteJSON(srv.URL+"/users/user1/wallet", &reset); err != nil || status != http.StatusOK {
		t.Fatalf("Error resetting wallet:%e status:%d", err, status)
	}

	if reset.SeedPhrase == "" || reset.SeedPhrase == created.SeedPhrase {
		t.Errorf("Error: reset did not produce a fresh seed phrase")
	}

	if reset.Addresses["ethereum"] == created.Addresses["ethereum"] {
		t.Errorf("Error: reset kept address %s", created.Addresses["ethereum"])
	}

	// resetting an unknown user fails
	if status, _ = deleteJSON(srv.URL+"/users/nobody/wallet", &reset); status != http.StatusNotFound {
		t.Errorf("Error in status:%d expected:%d", status, http.StatusNotFound)
	}

	// creation and reset each published a watch request
	reqs := mb.sent()
	if len(reqs) != 2 {
		t.Errorf("Error in wallet requests:%d expected:2", len(reqs))
	}

	for _, req := range reqs {
		if req.UserID != "user1" || req.Act != msg.WATCH {
			t.Errorf("Error in wallet request:%+v", req)
		}
	}
}

// getJSON places a GET request and decodes the body field of the envelope into out.
func getJSON(uri string, out interface{}) (int, error) {
	resp, err := http.Get(uri)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, out)
}

// deleteJSON places a DELETE request and decodes the body field of the envelope into out.
func deleteJSON(uri string, out interface{}) (int, error) {
	req, err := http.NewRequest(http.MethodDelete, uri, nil)
	if err != nil {
		return 0, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, out)
}

func decodeEnvelope(resp *http.Response, out interface{}) (int, error) {
	var res Response
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return resp.StatusCode, err
	}

	if res.Body == "" || resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, nil
	}

	if err := json.Unmarshal([]byte(res.Body), out); err != nil {
		return resp.StatusCode, errors.New("cannot unmarshal body: " + res.Body)
	}

	return resp.StatusCode, nil
}
