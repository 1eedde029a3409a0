// Package custody and its sub-packages implement the backend services for custodial multi-chain wallet
// management and deposit reconciliation.
/*
custody provides you with two microservices:

1) a wallet microservice (package wallet) that owns wallet creation: it derives one deposit address per
 user per supported blockchain, keeps the signing keys encrypted at rest and exposes a small read-only
 RESTful API for addresses, ledger balances and the deposit log.

2) a monitor microservice (package monitor) that periodically observes the on-chain balance of every
 deposit address, detects incoming deposits by comparing the observed balance against the user's internal
 ledger balance, and credits every positive delta exactly once.

Architecture

The wallet and monitor services communicate via a message broker. When the wallet service creates or
resets a wallet it publishes a request so monitors learn about new addresses right away. When the monitor
credits a deposit it publishes an event to the broker. Wallet services can listen to the broker so
external notifiers can be driven in real-time. The message broker is implemented as a product agnostic
layer (package lib/msg) and is configured via a JSON config file at service startup.

Both services share one document store holding three kinds of records: wallet records (addresses and
encrypted signing keys), the per-user balance ledger and the append-only transaction log. Its layered
implementation (package lib/store) provides a database product agnostic interface; a MongoDB and an
in-memory implementation are selectable by configuration.

A blockchain layer (package lib/chain) is implemented so new chain families can be developed and added.
The layer provides read-only balance queries; the services connect to the chains indicated in the JSON
config file provided at startup. Transaction broadcasting and signing are deliberately not part of this
system.

The microservices can also be monitored via a Prometheus API by setting the flag "-m" at startup.

Wallet

The wallet microservice (package wallet) can be started running cmd/wallet/main.go. Wallets are created
lazily on first access: loading an unknown user generates a fresh mnemonic, derives the EVM-family
keypair shared by all EVM chains, generates an independent keypair for the account-model chain, encrypts
the seed phrase and every private key, and persists the record. The plaintext seed phrase is returned to
the caller exactly once and is not re-derivable from storage without the cipher.

Monitor

The monitor microservice (package monitor) can be started running cmd/monitor/main.go. On a fixed
interval it enumerates all known wallets, fetches chain balances, diffs them against ledger balances and
credits positive deltas, writing one transaction log entry per credit before the ledger increment. A
failure reading one chain for one wallet never halts the loop; it is retried on the next cycle.
*/
package custody
