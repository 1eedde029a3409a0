// Package main: deposit monitor service.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cexcore/custody/lib/chain"
	"github.com/cexcore/custody/lib/config"
	"github.com/cexcore/custody/lib/msg"
	"github.com/cexcore/custody/lib/msg/amqp"
	"github.com/cexcore/custody/lib/store"
	"github.com/cexcore/custody/lib/store/db"
	"github.com/cexcore/custody/monitor"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	mon := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100")
	flag.Parse()

	// extract configuration
	var err error

	var conf config.ServiceConfig

	if conf, err = config.ExtractConfiguration(*confPath); err != nil {
		panic(err)
	}

	log.Printf("Configuration:%+v", conf)

	// connect to database
	var dbConn store.DB

	log.Printf("Connecting to database:%+v\n", conf.DBConn)

	if dbConn, err = db.New(conf.DBType, conf.DBConn); err != nil {
		panic(err)
	}

	defer func() {
		errClose := db.Close(conf.DBType, dbConn)
		log.Printf("Disconnecting %v database, err:%e\n", conf.DBType, errClose)
	}()

	// load all blockchains
	var chains map[string]chain.Chain

	if chains, err = chain.Init(conf.Chains); err != nil {
		panic(err)
	}

	defer chain.End(chains)
	log.Print("Blockchain clients loaded")

	// load Prometheus monitor
	if *mon {
		go func() {
			log.Println("Serving metrics API")

			h := http.NewServeMux()

			h.Handle("/metrics", promhttp.Handler())
			http.ListenAndServe(":9100", h)
		}()
	}

	// load message broker
	var mb msg.MsgBroker

	switch conf.MbType {
	case "amqp":
		if mb, err = amqp.New(conf.MbConn); err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if mb, err = amqp.New(conf.MbConn); err != nil {
				panic(err)
			}
		}

		if err = mb.Setup(nil); err != nil {
			panic(err)
		}

		defer func() {
			errClose := mb.Close()
			log.Printf("Closing messageBroker: %e", errClose)
		}()
	default:
		log.Printf("Unknown message broker type: %s\n", conf.MbType)
	}

	// create monitor service
	m := monitor.New(conf.DBType, dbConn, mb, chains,
		time.Duration(conf.CycleInterval)*time.Second, time.Duration(conf.ChainTimeout)*time.Second)

	// capture CTRL+C or docker's SIGTERM for gracious exit
	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Println("Program killed !")
		// do last actions and wait for all write operations to end
		m.Stop()
	}()

	// consume wallet requests published by the wallet service
	if err = m.ManageWalletRequests(); err != nil {
		log.Printf("Error setting up broker readers for wallet requests:%e", err)
	}

	// run the reconciliation loop until stopped
	m.Start(context.Background())
}
