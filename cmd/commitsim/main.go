// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command commitsim drives a Handler with a handful of synthetic
// consensus commits and prints the resulting per-transaction outcomes,
// the way cmd/sim exercises the wave protocol without a real network.
// It is a local exercising tool, not a benchmark harness: there is no
// flag for concurrency or host count, just epoch shape and round count.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/luxfi/consensus-core/commithandler"
	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/epochstore"
	"github.com/luxfi/consensus-core/epochstore/epochstoretest"
	"github.com/luxfi/consensus-core/protocolconfig"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

var logger = slog.Default().With("module", "commitsim")

// staticWeights is the minimal consensustx.WeightTable a standalone
// driver needs: a fixed committee with equal stake, no external
// validators.Set to construct.
type staticWeights struct {
	weights map[ids.NodeID]uint64
	total   uint64
}

func (w staticWeights) Weight(a ids.NodeID) uint64 { return w.weights[a] }
func (w staticWeights) TotalWeight() uint64        { return w.total }

type noopObjects struct{}

func (noopObjects) SharedObjectVersion(consensustx.OID, consensustx.Version) (consensustx.Version, bool, error) {
	return 0, false, nil
}

type noopVerifier struct{}

func (noopVerifier) InsertJWK(consensustx.JwkID, consensustx.Jwk) {}

type noopBuilderNotify struct{}

func (noopBuilderNotify) NotifyPendingCheckpoint(height uint64) {
	logger.Info("pending checkpoint staged", "height", height)
}

func main() {
	validators := flag.Int("validators", 4, "committee size")
	rounds := flag.Int("rounds", 5, "number of synthetic commits to feed the handler")
	txsPerRound := flag.Int("txs", 3, "number of user transactions per commit")
	flag.Parse()

	if *validators < 1 {
		fmt.Fprintln(os.Stderr, "commitsim: -validators must be at least 1")
		os.Exit(1)
	}

	auth := make([]ids.NodeID, *validators)
	weights := make(map[ids.NodeID]uint64, *validators)
	for i := range auth {
		auth[i] = ids.GenerateTestNodeID()
		weights[auth[i]] = 1
	}

	store := epochstore.New(1, epochstoretest.New())
	handle := epochstore.NewHandle(store)

	h, err := commithandler.New(commithandler.Deps{
		Store:   store,
		Handle:  handle,
		Objects: noopObjects{},
		Weights: staticWeights{weights: weights, total: uint64(*validators)},
		Config: protocolconfig.Config{
			MaxJwkVotesPerValidatorPerEpoch:            10,
			MaxJwkSizeBytes:                            4096,
			RandomBeaconDKGTimeoutRound:                1000,
			CongestionMode:                             protocolconfig.CongestionTotalGasBudget,
			MaxDeferralRoundsForCongestionControl:      3,
			PerCommitCostLimitRegular:                  1_000,
			PerCommitCostLimitRandomness:                1_000,
			MaxTxnCostOverageAllowedPerObjectInCommit:  0,
			DefaultExecutionTimeEstimateMicros:         1,
		},
		Logger:        log.NoLog{},
		JWKVerifier:   noopVerifier{},
		BuilderNotify: noopBuilderNotify{},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "commitsim: %v\n", err)
		os.Exit(1)
	}

	for round := 1; round <= *rounds; round++ {
		txs := make([]consensustx.SequencedConsensusTransaction, 0, *txsPerRound)
		for i := 0; i < *txsPerRound; i++ {
			author := auth[i%len(auth)]
			digest := ids.GenerateTestID()
			obj := ids.GenerateTestID()
			txs = append(txs, consensustx.SequencedConsensusTransaction{
				CertificateAuthor: author,
				Key:               digest,
				UserCert: &consensustx.UserCertificate{
					Digest:       digest,
					Author:       author,
					SharedInputs: []consensustx.SharedInput{{Object: obj, InitialSharedVersion: 0, Mutable: true}},
					GasBudget:    10,
					GasPrice:     uint64(i + 1),
				},
			})
		}

		outcomes, err := h.HandleCommit(consensustx.ConsensusCommit{
			Round:        uint64(round),
			TimestampMs:  uint64(round) * 1000,
			Transactions: txs,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "commitsim: round %d: %v\n", round, err)
			os.Exit(1)
		}

		logger.Info("commit processed", "round", round, "outcomes", len(outcomes))
		for _, o := range outcomes {
			logger.Info("outcome", "round", round, "kind", o.Kind)
		}
	}
}
