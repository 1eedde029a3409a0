// Package wallet implements the custody wallet microservice.
//
// The service owns wallet records: it lazily creates per-user multi-chain wallets, resets them on
// demand and exposes a small read-only RESTful API over the store (addresses, balances, transaction
// history). Deposit crediting happens in the monitor service; this service consumes the resulting
// deposit events from the broker.
package wallet

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/cexcore/custody/lib/chain"
	"github.com/cexcore/custody/lib/msg"
	"github.com/cexcore/custody/lib/store"
	"github.com/cexcore/custody/lib/store/db"
)

// Wallet contains the data necessary to deliver the service.
type Wallet struct {
	dbtype  string
	db      store.DB               // db connection
	bc      map[string]chain.Chain // blockchain clients
	wallets *Wallets               // wallet store adapter
	mb      msg.MsgBroker
	s       *http.Server  // http server
	ss      *http.Server  // https server
	sc      chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new Wallet service.
func New(dbtype string, dbConn store.DB, mb msg.MsgBroker, bc map[string]chain.Chain, wallets *Wallets) *Wallet {
	return &Wallet{
		dbtype:  dbtype,
		db:      dbConn,
		mb:      mb,
		bc:      bc,
		wallets: wallets,
	}
}

// Stop shuts down the http servers implementing the RESTful API and closes gracefully the connections
// to the message broker and database.
func (w *Wallet) Stop() {
	var err error
	// shutdown http server
	if w.s != nil {
		if err = w.s.Shutdown(context.Background()); err != nil {
			log.Printf("Error in http server shutdown:%e", err)
		}
	}

	if w.ss != nil {
		if err = w.ss.Shutdown(context.Background()); err != nil {
			log.Printf("Error in https server shutdown:%e", err)
		}
	}

	close(w.sc) // close server channels to indicate shutdowns have finished
	// close message broker
	if err = w.mb.Close(); err != nil {
		log.Printf("Error closing message broker:%e", err)
	}
	// close database
	if w.db != nil {
		err = db.Close(w.dbtype, w.db)
		log.Printf("Disconnecting %v database, err:%e\n", w.dbtype, err)
	}
}

// ManageEvents starts go routines to consume the deposit events published by the monitor service. For
// each connected blockchain, two channels are opened, one for deposit events, and one for errors.
// Events are logged; notification delivery to end users belongs to an external collaborator.
func (w *Wallet) ManageEvents() error {
	for net := range w.bc {
		var mut *sync.Mutex = new(sync.Mutex)
		mut.Lock()

		depCh, errCh, err := w.mb.GetDeposits(net, mut)
		if err != nil {
			return err
		}

		// launch deposit channel reader
		go func(netName string) {
			log.Printf("[%s] Start listening to deposit event channel", netName)
			for dep := range depCh {
				log.Printf("[%s] Deposit credited user:%s token:%s amount:%s ref:%s",
					netName, dep.UserID, dep.Token, dep.Amount.String(), dep.Ref)
				mut.Unlock()
			}
			log.Printf("[%s] Stop listening to deposit event channel", netName)
		}(net)

		// launch error channel reader
		go func(netName string) {
			log.Printf("[%s] Start listening to err channel", netName)
			for e := range errCh {
				log.Printf("[%s] Received error %+v", netName, e)
			}
			log.Printf("[%s] Stop listening to err channel", netName)
		}(net)
	}

	return nil
}
