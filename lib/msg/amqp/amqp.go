// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/streadway/amqp"

	"github.com/cexcore/custody/lib/msg"
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New instantiates a new amqp broker.
func New(uri string) (*Amqp, error) {
	r := Amqp{}
	var err error

	if r.conn, err = amqp.Dial(uri); err != nil {
		return &r, err
	}
	r.ch = nil
	log.Printf("Connected to %s", uri)

	return &r, err
}

// Setup obtains an amqp channel and declares the message broker exchanges:
//
// - cw ("custody wallets"): the wallet service publishes wallet creation/reset requests to this exchange
//
// - de ("deposit events"): the monitor service publishes credited deposits to this exchange
func (r *Amqp) Setup(x interface{}) error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()
	// declare exchanges
	if err = channel.ExchangeDeclare("cw", "topic", true, false, false, false, nil); err != nil {
		return err
	}
	err = channel.ExchangeDeclare("de", "topic", true, false, false, false, nil)
	return err
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.Printf("Error closing amqp.Channel:%e", err)
		}
		r.ch = nil
		log.Printf("amqp.Channel closed!")
	}
	return r.conn.Close()
}

// SendDeposits publishes credited deposit events to the "de" exchange
func (r *Amqp) SendDeposits(chain string, ds []msg.Deposit) (err error) {
	for _, d := range ds {
		// marshal to JSON
		var jsonDoc []byte
		if jsonDoc, err = json.Marshal(d); err != nil {
			return
		}
		// obtain channel if not present
		if r.ch == nil {
			if r.ch, err = r.conn.Channel(); err != nil {
				return
			}
		}
		// build body
		m := amqp.Publishing{
			Headers:     amqp.Table{"x-deposit-name": chain + "." + d.Ref},
			Body:        jsonDoc,
			ContentType: "application/json",
		}
		// publish
		if err = r.ch.Publish("de", chain+".deposit."+d.UserID, false, false, m); err != nil {
			log.Printf("[%s] Error sending deposit event to message broker %e", chain, err)
		}
	}
	return
}

// SendWalletReq publishes a new wallet request to the "cw" exchange
func (r *Amqp) SendWalletReq(wr msg.WalletReq) (err error) {
	// marshal to JSON
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(wr); err != nil {
		return
	}
	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return
		}
	}
	// build body
	m := amqp.Publishing{
		Headers:     amqp.Table{"x-wreq-name": wr.UserID},
		Body:        jsonDoc,
		ContentType: "application/json",
	}
	// publish
	if err = r.ch.Publish("cw", "wallets.req."+wr.UserID, false, false, m); err != nil {
		log.Printf("Error sending wallet request to message broker %e", err)
	}
	return
}

// GetDeposits consumes deposit events for one chain from the "de" exchange pushing them to the
// returned channel. The Mutex pointer is provided to ensure the consumed message has been fully dealt
// with by the management function, so the message consumed is only acknowledged when the mutex is
// unlocked.
func (r *Amqp) GetDeposits(chain string, mut *sync.Mutex) (<-chan msg.Deposit, <-chan error, error) {
	var err error
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return nil, nil, err
		}
	}
	// declare queue
	if _, err = r.ch.QueueDeclare("de"+chain, true, false, false, false, nil); err != nil {
		return nil, nil, err
	}
	// bind queue to exchange
	if err = r.ch.QueueBind("de"+chain, chain+".*.*", "de", false, nil); err != nil {
		return nil, nil, err
	}
	// create channel for receiving events
	msgs, errCons := r.ch.Consume("de"+chain, "monitor-"+chain, false, false, false, false, nil)
	if errCons != nil {
		return nil, nil, errCons
	}
	// define channels to return
	eves := make(chan msg.Deposit)
	errs := make(chan error)
	// start routine to consume messages from broker
	go func() {
		for m := range msgs {
			var d *msg.Deposit = new(msg.Deposit)
			err := json.Unmarshal(m.Body, d)
			if err != nil {
				errs <- err
				continue
			}
			eves <- *d
			mut.Lock() // wait for wallet to finish processing the event
			m.Ack(false)
		}
	}()
	return eves, errs, nil
}

// GetWalletReqs consumes wallet requests from the "cw" exchange pushing them to the returned channel.
// The Mutex pointer is provided to ensure the consumed message has been fully dealt with by the
// management function, so the message consumed is only acknowledged when the mutex is unlocked.
func (r *Amqp) GetWalletReqs(mut *sync.Mutex) (<-chan msg.WalletReq, <-chan error, error) {
	var err error
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return nil, nil, err
		}
	}
	// declare queue
	if _, err = r.ch.QueueDeclare("cwwallets", true, false, false, false, nil); err != nil {
		return nil, nil, err
	}
	// bind queue to exchange
	if err = r.ch.QueueBind("cwwallets", "wallets.*.*", "cw", false, nil); err != nil {
		return nil, nil, err
	}
	// create channel for receiving requests
	msgs, errCons := r.ch.Consume("cwwallets", "monitor-wallets", false, false, false, false, nil)
	if errCons != nil {
		return nil, nil, errCons
	}
	// define channels to return
	reqs := make(chan msg.WalletReq)
	errs := make(chan error)
	// start routine to consume messages from broker
	go func() {
		for m := range msgs {
			var req *msg.WalletReq = new(msg.WalletReq)
			err := json.Unmarshal(m.Body, req)
			if err != nil {
				errs <- err
				continue
			}
			reqs <- *req
			mut.Lock() // wait for monitor to finish processing the request
			m.Ack(false)
		}
	}()
	return reqs, errs, nil
}
