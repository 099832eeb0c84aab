// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package commithandler

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/luxfi/consensus-core/checkpoint"
	"github.com/luxfi/consensus-core/congestion"
	"github.com/luxfi/consensus-core/consensustx"
	"github.com/luxfi/consensus-core/deferral"
	"github.com/luxfi/consensus-core/epochstore"
	"github.com/luxfi/consensus-core/jwk"
	"github.com/luxfi/consensus-core/notify"
	"github.com/luxfi/consensus-core/protocolconfig"
	"github.com/luxfi/consensus-core/quarantine"
	"github.com/luxfi/consensus-core/randomness"
	"github.com/luxfi/consensus-core/reconfig"
	"github.com/luxfi/consensus-core/versioning"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
)

// CheckpointBuilderNotifier is the external checkpoint-builder service
// (spec §1: out-of-scope collaborator) the handler pings once new pending
// checkpoints have been staged (spec §4.9 step 11).
type CheckpointBuilderNotifier interface {
	NotifyPendingCheckpoint(height uint64)
}

// Deps bundles every collaborator the handler needs at construction time.
type Deps struct {
	Store      *epochstore.Store
	Handle     *epochstore.Handle
	Objects    versioning.ObjectStore
	Weights    consensustx.WeightTable
	Config     protocolconfig.Config
	Logger     log.Logger
	Registerer prometheus.Registerer

	JWKVerifier   jwk.Verifier
	DKGFinalizer  randomness.Finalizer
	RandomnessGen randomness.Generator
	BuilderNotify CheckpointBuilderNotifier
}

// Handler is the commit handler (C9): the single entry point that turns
// one ConsensusCommit into a staged CCO plus the side effects described in
// spec §4.9.
type Handler struct {
	store   *epochstore.Store
	handle  *epochstore.Handle
	cfg     protocolconfig.Config
	logger  log.Logger
	metrics *metrics

	quarantine    *quarantine.Quarantine
	versions      *versioning.Manager
	deferralStore *deferral.Store
	randomnessMgr *randomness.Manager
	jwkAgg        *jwk.Aggregator
	reconfigSM    *reconfig.StateMachine
	checkpoints   *checkpoint.Builder
	estimator     *congestion.Estimator

	consensusNotify *notify.Fabric[consensustx.CTK]
	digestNotify    *notify.Fabric[consensustx.TK]

	dkgFinalizer  randomness.Finalizer
	randomnessGen randomness.Generator
	builderNotify CheckpointBuilderNotifier

	digestsMu sync.Mutex
	digests   map[consensustx.TK]consensustx.TD
}

// New wires every C1-C8, C10, C11 collaborator behind one handler, the way
// the teacher's engine/chain.New composes its bootstrapper, acceptor, and
// VM handle behind one Engine.
func New(d Deps) (*Handler, error) {
	m, err := newMetrics(d.Registerer)
	if err != nil {
		return nil, fmt.Errorf("commithandler: register metrics: %w", err)
	}

	q := quarantine.New(d.Store)
	vm := versioning.New(q, d.Objects, d.Logger)

	defStore, err := deferral.New(d.Store)
	if err != nil {
		return nil, err
	}

	randMgr, err := randomness.NewManager(d.Store, d.Weights, d.Config.RandomBeaconDKGTimeoutRound, d.Logger)
	if err != nil {
		return nil, err
	}

	jwkAgg, err := jwk.NewAggregator(d.Store, d.Weights, d.Config.MaxJwkVotesPerValidatorPerEpoch, d.JWKVerifier, d.Logger)
	if err != nil {
		return nil, err
	}

	reconfigSM, err := reconfig.New(d.Store, d.Weights, d.Logger)
	if err != nil {
		return nil, err
	}

	estimator, err := congestion.NewEstimator(d.Registerer, d.Config.DefaultExecutionTimeEstimateMicros, 4096)
	if err != nil {
		return nil, err
	}

	return &Handler{
		store:           d.Store,
		handle:          d.Handle,
		cfg:             d.Config,
		logger:          d.Logger,
		metrics:         m,
		quarantine:      q,
		versions:        vm,
		deferralStore:   defStore,
		randomnessMgr:   randMgr,
		jwkAgg:          jwkAgg,
		reconfigSM:      reconfigSM,
		checkpoints:     checkpoint.New(q, d.Logger),
		estimator:       estimator,
		consensusNotify: notify.New[consensustx.CTK](),
		digestNotify:    notify.New[consensustx.TK](),
		dkgFinalizer:    d.DKGFinalizer,
		randomnessGen:   d.RandomnessGen,
		builderNotify:   d.BuilderNotify,
		digests:         make(map[consensustx.TK]consensustx.TD),
	}, nil
}

// classified is the step-1 partition of one commit's transactions.
type classified struct {
	systemTxs  []consensustx.SequencedConsensusTransaction
	eopMsgs    []consensustx.SequencedConsensusTransaction
	execObs    []consensustx.SequencedConsensusTransaction
	randomness []consensustx.SequencedConsensusTransaction // user txs using randomness
	regular    []consensustx.SequencedConsensusTransaction // everything else needing per-tx processing
}

// ccoStage accumulates the checkpoint roots alongside the CCO the commit
// is building, since quarantine.CCO itself only tracks the durable effects
// (spec §4.9 steps 8-10), not the in-progress root lists step 9 consumes.
type ccoStage struct {
	cco             *quarantine.CCO
	regularRoots    []consensustx.TK
	randomnessRoots []consensustx.TK
}

func newCCOStage(round, height uint64) *ccoStage {
	return &ccoStage{cco: quarantine.NewCCO(round, height)}
}

func (s *ccoStage) appendRoot(isRandomness bool, key consensustx.TK) {
	if isRandomness {
		s.randomnessRoots = append(s.randomnessRoots, key)
		return
	}
	s.regularRoots = append(s.regularRoots, key)
}

func (s *ccoStage) prependRegularRoot(key consensustx.TK) {
	s.regularRoots = append([]consensustx.TK{key}, s.regularRoots...)
}

func (s *ccoStage) prependRandomnessRoot(key consensustx.TK) {
	s.randomnessRoots = append([]consensustx.TK{key}, s.randomnessRoots...)
}

// HandleCommit implements process_consensus_transactions_and_commit_boundary
// (spec §6, §4.9). It returns the per-message outcomes in the order the
// algorithm resolved them, for observability and tests; callers that only
// need execution input should filter for Kind == Schedule or Kind == Cancel.
func (h *Handler) HandleCommit(commit consensustx.ConsensusCommit) ([]ScheduleOutcome, error) {
	timer := prometheus.NewTimer(h.metrics.commitLatency)
	defer timer.ObserveDuration()

	batch := h.store.NewBatch()
	var outcomes []ScheduleOutcome
	var processedCTKs []consensustx.CTK

	// --- step 1: verify, classify, drop already-processed -----------------
	c, err := h.classify(commit, &outcomes)
	if err != nil {
		return nil, err
	}

	height := commit.Round
	if h.cfg.RandomnessEnabled {
		height = 2 * commit.Round
	}
	stage := newCCOStage(commit.Round, height)

	// EndOfPublish is folded in immediately after classification so the
	// SeenEndOfPublish check below (step 6, first bullet) observes
	// same-commit EndOfPublish messages too.
	for _, tx := range c.eopMsgs {
		outcomes = append(outcomes, h.applyEndOfPublish(stage.cco, tx))
		processedCTKs = append(processedCTKs, tx.Key)
	}

	dkgFailed := h.randomnessMgr.State() == randomness.Failed
	willGenerateRandomness := h.randomnessMgr.ReadyToReserve(h.reconfigSM.AcceptsAnyTx(), h.cfg.RandomnessEnabled)

	// --- step 2: load deferred ----------------------------------------------
	deferredTxs := h.deferralStore.LoadReady(stage.cco, commit.Round, willGenerateRandomness || dkgFailed)
	var deferredRegular, deferredRandomness []consensustx.SequencedConsensusTransaction
	for _, tx := range deferredTxs {
		if tx.UserCert != nil && tx.UserCert.UsesRandomness {
			deferredRandomness = append(deferredRandomness, tx)
		} else {
			deferredRegular = append(deferredRegular, tx)
		}
	}

	// --- step 3: reserve randomness round ------------------------------------
	var randomnessRound *uint64
	if willGenerateRandomness {
		r := h.randomnessMgr.ReserveNextRandomness(stage.cco, commit.TimestampMs)
		randomnessRound = &r
	}

	// --- step 4: seed congestion trackers -------------------------------------
	regularPool := append(append([]consensustx.SequencedConsensusTransaction{}, deferredRegular...), c.regular...)
	randomnessPool := append(append([]consensustx.SequencedConsensusTransaction{}, deferredRandomness...), c.randomness...)

	regularDebts, err := h.quarantine.LoadInitialObjectDebts(false, regularPool, h.cfg.CongestionDebtDecayPerCommit)
	if err != nil {
		return nil, err
	}
	randomDebts, err := h.quarantine.LoadInitialObjectDebts(true, randomnessPool, h.cfg.CongestionDebtDecayPerCommit)
	if err != nil {
		return nil, err
	}
	regularTracker := congestion.NewTracker(h.cfg.CongestionMode, h.cfg.TotalGasBudgetCap, h.cfg.PerCommitCostLimitRegular, h.cfg.MaxTxnCostOverageAllowedPerObjectInCommit, h.estimator, regularDebts)
	randomTracker := congestion.NewTracker(h.cfg.CongestionMode, h.cfg.TotalGasBudgetCap, h.cfg.PerCommitCostLimitRandomness, h.cfg.MaxTxnCostOverageAllowedPerObjectInCommit, h.estimator, randomDebts)

	// --- step 5: reorder -------------------------------------------------------
	reorderByGasPriceDesc(regularPool)
	reorderByGasPriceDesc(randomnessPool)

	// --- step 6: per-transaction processing -------------------------------------
	for _, tx := range c.systemTxs {
		outcomes = append(outcomes, scheduled(tx))
		processedCTKs = append(processedCTKs, tx.Key)
		stage.appendRoot(false, consensustx.DigestKey(tx.System.Digest))
	}

	var addedDeferralsThisCommit bool

	processGroup := func(pool []consensustx.SequencedConsensusTransaction, tracker *congestion.Tracker, usesRandomness bool) error {
		for _, tx := range pool {
			o, deferredNow, err := h.processUserTx(batch, stage.cco, commit, tx, tracker, dkgFailed, willGenerateRandomness)
			if err != nil {
				return err
			}
			if deferredNow {
				addedDeferralsThisCommit = true
			}
			outcomes = append(outcomes, o)
			processedCTKs = append(processedCTKs, tx.Key)

			switch o.Kind {
			case Schedule:
				if _, err := h.versions.AssignVersions(tx.UserCert, stage.cco, versioning.NotCancelled); err != nil {
					return err
				}
				stage.appendRoot(usesRandomness, consensustx.DigestKey(tx.UserCert.Digest))
			case Cancel:
				reason := versioning.CancelledCongestion
				if o.CancelWhy.Kind == CancelDkgFailed {
					reason = versioning.CancelledDKGFailed
				}
				if _, err := h.versions.AssignVersions(tx.UserCert, stage.cco, reason); err != nil {
					return err
				}
				stage.appendRoot(usesRandomness, consensustx.DigestKey(tx.UserCert.Digest))
			}
		}
		return nil
	}
	if err := processGroup(regularPool, regularTracker, false); err != nil {
		return nil, err
	}
	if err := processGroup(randomnessPool, randomTracker, true); err != nil {
		return nil, err
	}

	for _, tx := range c.execObs {
		h.estimator.ProcessObservation(tx.CertificateAuthorIndex, tx.ExecTimeObs.Generation, tx.ExecTimeObs.Entries)
		outcomes = append(outcomes, appliedConsensusMessage(tx))
		processedCTKs = append(processedCTKs, tx.Key)
	}

	// AdvanceDKG runs after this commit's own DKG messages/confirmations
	// have been folded in above, so a timeout transitions to Failed as of
	// the next commit's dkgFailed snapshot, not this one's.
	h.randomnessMgr.AdvanceDKG(commit.Round)

	// --- step 7: consensus-commit-prologue synthesis -----------------------------
	prologue := h.synthesizePrologue(commit)
	stage.prependRegularRoot(consensustx.DigestKey(prologue.Digest))

	// step 8 (shared-version assignment) is folded into processGroup above so
	// each admission sees the running next_version pointer in its scheduled
	// position; the prologue itself declares no shared inputs.

	// --- step 9: build pending checkpoint(s) --------------------------------------
	if randomnessRound != nil {
		stage.prependRandomnessRoot(consensustx.RandomnessRoundKey(h.store.Epoch(), *randomnessRound))
	}

	deferralEmpty := len(h.deferralStore.Snapshot()) == 0
	lastOfEpoch := h.reconfigSM.AdvanceToRejectAllTxIfReady(stage.cco, deferralEmpty, addedDeferralsThisCommit)

	if err := h.checkpoints.Propose(stage.cco, stage.cco.Height, commit.TimestampMs, stage.regularRoots, stage.randomnessRoots, lastOfEpoch); err != nil {
		return nil, err
	}

	// --- step 10: record commit stats, stage CCO ------------------------------------
	stage.cco.SetLastConsensusStats(consensustx.LastConsensusStats{
		SchemaVersion:  1,
		Round:          commit.Round,
		SubDagIndex:    commit.SubDagIndex,
		TxIndex:        uint64(len(commit.Transactions)),
		AuthorCounters: commit.AuthorCounters,
	})
	stage.cco.SetObjectDebts(regularTracker.Debts(h.cfg.PerCommitCostLimitRegular))
	stage.cco.SetRandomnessObjectDebts(randomTracker.Debts(h.cfg.PerCommitCostLimitRandomness))

	// Every consensus message this commit resolved after classification
	// (scheduled, deferred, cancelled, applied in-place, or dropped during
	// per-transaction processing) is marked processed so a replayed commit
	// carrying the same CTK is a no-op (spec §8 property 2) once this CCO
	// is visible to the quarantine. Messages classify drops for an
	// authority mismatch are not marked; a replay of one is dropped again.
	for _, ctk := range processedCTKs {
		stage.cco.MarkProcessed(ctk)
	}

	h.quarantine.Push(stage.cco)
	if err := batch.Write(); err != nil {
		return nil, err
	}

	// --- step 11: post-commit side effects --------------------------------------------
	if h.builderNotify != nil {
		h.builderNotify.NotifyPendingCheckpoint(height)
	}
	if randomnessRound != nil && h.randomnessGen != nil {
		h.randomnessGen.GenerateRandomness(h.store.Epoch(), *randomnessRound)
	}
	h.consensusNotify.NotifyAll(processedCTKs)

	h.recordMetrics(outcomes)
	h.metrics.pendingDeferred.Set(float64(len(h.deferralStore.Snapshot())))
	h.metrics.congestionDebt.Set(float64(len(stage.cco.ObjectDebts) + len(stage.cco.RandomnessObjectDebts)))
	return outcomes, nil
}

func (h *Handler) recordMetrics(outcomes []ScheduleOutcome) {
	for _, o := range outcomes {
		switch o.Kind {
		case Schedule:
			h.metrics.txsScheduled.Inc()
		case Defer:
			h.metrics.txsDeferred.Inc()
		case Cancel:
			h.metrics.txsCancelled.Inc()
		case Ignored, IgnoredSystem:
			h.metrics.txsDropped.Inc()
		}
	}
}

// classify implements spec §4.9 step 1.
func (h *Handler) classify(commit consensustx.ConsensusCommit, outcomes *[]ScheduleOutcome) (classified, error) {
	var c classified
	for _, tx := range commit.Transactions {
		done, err := h.quarantine.IsConsensusMessageProcessed(tx.Key)
		if err != nil {
			return c, err
		}
		if done {
			continue
		}

		if claimed, ok := claimedAuthority(tx); ok && claimed != tx.CertificateAuthor {
			consensustx.LogByzantine(h.logger, tx.Key, "claimed authority does not match certificate author")
			*outcomes = append(*outcomes, ignored(tx))
			continue
		}

		switch tx.Kind {
		case consensustx.KindSystemTransaction:
			c.systemTxs = append(c.systemTxs, tx)
		case consensustx.KindEndOfPublish:
			c.eopMsgs = append(c.eopMsgs, tx)
		case consensustx.KindExecutionTimeObservation:
			c.execObs = append(c.execObs, tx)
		default:
			if h.cfg.RandomnessEnabled && tx.UserCert != nil && tx.UserCert.UsesRandomness {
				c.randomness = append(c.randomness, tx)
			} else {
				c.regular = append(c.regular, tx)
			}
		}
	}
	return c, nil
}

func claimedAuthority(tx consensustx.SequencedConsensusTransaction) (ids.NodeID, bool) {
	switch {
	case tx.Capability != nil:
		return tx.Capability.ClaimedAuthority(), true
	case tx.JWK != nil:
		return tx.JWK.ClaimedAuthority(), true
	case tx.DKG != nil:
		return tx.DKG.ClaimedAuthority(), true
	case tx.DKGConf != nil:
		return tx.DKGConf.ClaimedAuthority(), true
	case tx.EOP != nil:
		return tx.EOP.ClaimedAuthority(), true
	case tx.ExecTimeObs != nil:
		return tx.ExecTimeObs.ClaimedAuthority(), true
	case tx.CheckpointSig != nil:
		return tx.CheckpointSig.ClaimedAuthority(), true
	default:
		return ids.NodeID{}, false
	}
}

func (h *Handler) applyEndOfPublish(cco *quarantine.CCO, tx consensustx.SequencedConsensusTransaction) ScheduleOutcome {
	if !h.reconfigSM.AcceptsConsensusCerts() {
		return ignoredSystem(tx)
	}
	h.reconfigSM.RecordEndOfPublish(cco, tx.EOP.Authority)
	return appliedConsensusMessage(tx)
}

// processUserTx implements spec §4.9 step 6's per-transaction bullets for
// one member of the regular or randomness pool. deferredNow reports
// whether this call staged a fresh deferral-store insert.
func (h *Handler) processUserTx(batch *epochstore.Batch, cco *quarantine.CCO, commit consensustx.ConsensusCommit, tx consensustx.SequencedConsensusTransaction, tracker *congestion.Tracker, dkgFailed, willGenerateRandomness bool) (ScheduleOutcome, bool, error) {
	if tx.UserCert != nil {
		return h.admitUserCert(cco, commit, tx, tracker, dkgFailed, willGenerateRandomness)
	}
	return h.applySystemConsensusMessage(batch, cco, commit, tx)
}

func (h *Handler) admitUserCert(cco *quarantine.CCO, commit consensustx.ConsensusCommit, tx consensustx.SequencedConsensusTransaction, tracker *congestion.Tracker, dkgFailed, willGenerateRandomness bool) (ScheduleOutcome, bool, error) {
	if !tx.PreviouslyDeferred && h.reconfigSM.SeenEndOfPublish(tx.CertificateAuthor) {
		consensustx.LogByzantine(h.logger, tx.Key, "user tx from author past its end_of_publish")
		return ignored(tx), false, nil
	}
	if !tx.PreviouslyDeferred && !h.reconfigSM.AcceptsNewUserCerts() {
		return ignored(tx), false, nil
	}

	originallyDeferredRound := commit.Round
	if tx.PreviouslyDeferred {
		originallyDeferredRound = tx.PreviousDeferralKey.DeferredFromRound
	}

	// A randomness-using certificate cannot be admitted until this
	// commit actually reserves a randomness round for it to consume;
	// the congestion tracker only ever yields consensus-round deferral
	// keys, so this case is resolved before consulting it (spec §3
	// Deferral Key "until randomness available", §4.5, §4.9 step 2).
	if tx.UserCert.UsesRandomness && !willGenerateRandomness && !dkgFailed {
		finalKey := consensustx.NewRandomnessDeferralKey(originallyDeferredRound)
		tx.PreviouslyDeferred = true
		tx.PreviousDeferralKey = finalKey
		h.deferralStore.Insert(cco, finalKey, []consensustx.SequencedConsensusTransaction{tx})
		return deferred(tx, finalKey, DeferralReasonRandomnessBlocked()), true, nil
	}

	decision, deferKey := tracker.Decide(tx.UserCert, commit.Round)
	if decision == congestion.Admit {
		if dkgFailed && tx.UserCert.UsesRandomness {
			return cancelled(tx, CancelReason{Kind: CancelDkgFailed}), false, nil
		}
		return scheduled(tx), false, nil
	}

	finalKey, cancelDueToBudget := deferral.DeferOrCancel(commit.Round, originallyDeferredRound, deferKey.TargetRound, h.cfg.MaxDeferralRoundsForCongestionControl)

	if dkgFailed && tx.UserCert.UsesRandomness {
		return cancelled(tx, CancelReason{Kind: CancelDkgFailed}), false, nil
	}
	if cancelDueToBudget {
		return cancelled(tx, CancelReason{Kind: CancelCongestion, Objects: objectsOf(tx.UserCert)}), false, nil
	}

	tx.PreviouslyDeferred = true
	tx.PreviousDeferralKey = finalKey
	h.deferralStore.Insert(cco, finalKey, []consensustx.SequencedConsensusTransaction{tx})
	return deferred(tx, finalKey, DeferralReasonCongestion(objectsOf(tx.UserCert))), true, nil
}

func objectsOf(cert *consensustx.UserCertificate) []consensustx.OID {
	out := make([]consensustx.OID, 0, len(cert.SharedInputs))
	for _, si := range cert.SharedInputs {
		out = append(out, si.Object)
	}
	return out
}

func (h *Handler) applySystemConsensusMessage(batch *epochstore.Batch, cco *quarantine.CCO, commit consensustx.ConsensusCommit, tx consensustx.SequencedConsensusTransaction) (ScheduleOutcome, bool, error) {
	if !h.reconfigSM.AcceptsConsensusCerts() {
		return ignoredSystem(tx), false, nil
	}

	switch {
	case tx.Capability != nil:
		var err error
		if h.cfg.AuthorityCapabilitiesV2 {
			err = batch.PutCapabilityV2(tx.Capability.Authority, *tx.Capability)
		} else {
			err = batch.PutCapabilityV1(tx.Capability.Authority, *tx.Capability)
		}
		if err != nil {
			return ScheduleOutcome{}, false, err
		}
		return appliedConsensusMessage(tx), false, nil

	case tx.JWK != nil:
		size := len(tx.JWK.Jwk.N) + len(tx.JWK.Jwk.E)
		if _, err := h.jwkAgg.RecordVote(cco, commit.Round, tx.JWK.Authority, tx.JWK.JwkID, tx.JWK.Jwk, size, h.cfg.MaxJwkSizeBytes); err != nil {
			return ScheduleOutcome{}, false, err
		}
		return appliedConsensusMessage(tx), false, nil

	case tx.DKG != nil:
		crossedQuorum := h.randomnessMgr.AddMessage(cco, *tx.DKG)
		if crossedQuorum {
			h.logger.Info("dkg processed-message quorum reached, broadcasting own confirmation next round")
		}
		return appliedRandomnessMessage(tx), false, nil

	case tx.DKGConf != nil:
		if _, err := h.randomnessMgr.AddConfirmation(cco, *tx.DKGConf, h.dkgFinalizer); err != nil {
			return ScheduleOutcome{}, false, err
		}
		return appliedRandomnessMessage(tx), false, nil

	case tx.CheckpointSig != nil:
		if err := batch.PutPendingCheckpointSignature(*tx.CheckpointSig); err != nil {
			return ScheduleOutcome{}, false, err
		}
		return appliedConsensusMessage(tx), false, nil

	default:
		return ignored(tx), false, nil
	}
}

// synthesizePrologue implements spec §4.9 step 7.
func (h *Handler) synthesizePrologue(commit consensustx.ConsensusCommit) *consensustx.SystemTransaction {
	p := &consensustx.SystemTransaction{
		Kind:                consensustx.SystemConsensusCommitPrologue,
		PrologueEpoch:       h.store.Epoch(),
		PrologueRound:       commit.Round,
		PrologueTimestampMs: commit.TimestampMs,
	}
	if h.cfg.ConsensusCommitPrologueHasConsensusOutputDigest && commit.HasConsensusOutputDigest {
		p.PrologueHasConsensusDigest = true
		p.PrologueConsensusDigest = commit.ConsensusOutputDigest
	}
	p.Digest = prologueDigest(h.store.Epoch(), commit.Round, commit.TimestampMs)
	return p
}

func prologueDigest(epoch, round, timestampMs uint64) consensustx.TD {
	var id ids.ID
	binary.BigEndian.PutUint64(id[0:8], epoch)
	binary.BigEndian.PutUint64(id[8:16], round)
	binary.BigEndian.PutUint64(id[16:24], timestampMs)
	return id
}

// reorderByGasPriceDesc implements spec §4.9 step 5's reorder: a stable
// descending sort by gas price, so elements already ordered first within
// the slice (the deferred carry-overs prepended by the caller) retain
// priority at equal keys. Non-certificate messages (checkpoint signatures,
// capability/JWK/DKG messages) carry no gas price and rank as gas price 0,
// after every certificate with a nonzero gas price.
func reorderByGasPriceDesc(pool []consensustx.SequencedConsensusTransaction) {
	sort.SliceStable(pool, func(i, j int) bool {
		return gasPriceOf(pool[i]) > gasPriceOf(pool[j])
	})
}

func gasPriceOf(tx consensustx.SequencedConsensusTransaction) uint64 {
	if tx.UserCert == nil {
		return 0
	}
	return tx.UserCert.GasPrice
}

// NotifyReadConsensusMessages implements the upward interface of the same
// name (spec §6): wait until every listed CTK has been processed.
func (h *Handler) NotifyReadConsensusMessages(ctx context.Context, keys []consensustx.CTK) error {
	return h.consensusNotify.Wait(ctx, keys)
}

// RecordExecutedDigest publishes the digest execution resolved a symbolic
// transaction key to, for NotifyReadExecutedDigests waiters. Called by the
// execution layer once it materializes the corresponding transaction, not
// by the commit handler itself.
func (h *Handler) RecordExecutedDigest(key consensustx.TK, digest consensustx.TD) {
	h.digestsMu.Lock()
	h.digests[key] = digest
	h.digestsMu.Unlock()
	h.digestNotify.Notify(key)
}

// NotifyReadExecutedDigests implements the upward interface of the same
// name (spec §6): wait until every listed TK has been materialized, then
// return the resolved digests in the same order as keys.
func (h *Handler) NotifyReadExecutedDigests(ctx context.Context, keys []consensustx.TK) ([]consensustx.TD, error) {
	if err := h.digestNotify.Wait(ctx, keys); err != nil {
		return nil, err
	}
	out := make([]consensustx.TD, len(keys))
	h.digestsMu.Lock()
	for i, k := range keys {
		out[i] = h.digests[k]
	}
	h.digestsMu.Unlock()
	return out, nil
}

// AcquireTxLock implements the upward interface of the same name (spec
// §6): a single-writer lock per transaction digest to prevent concurrent
// equivocating signing.
func (h *Handler) AcquireTxLock(digest consensustx.TD) func() {
	return h.store.AcquireTxLock(digest)
}

// InsertPendingConsensusTransactions implements the upward interface of
// the same name (spec §6). Submission silently no-ops once the epoch has
// stopped accepting new user certificates, mirroring spec §4.8's
// "attempting to accept a new user certificate while in RejectNewCerts+
// states silently ignores it" — the "reconfig_guard" the spec's signature
// mentions is this check, held implicitly for the duration of the call.
func (h *Handler) InsertPendingConsensusTransactions(txs []consensustx.SequencedConsensusTransaction) error {
	if !h.reconfigSM.AcceptsNewUserCerts() {
		return nil
	}
	batch := h.store.NewBatch()
	for _, tx := range txs {
		if err := batch.PutPendingConsensusTransaction(tx.Key, tx); err != nil {
			return err
		}
	}
	return batch.Write()
}

// RemovePendingConsensusTransactions implements the upward interface of
// the same name (spec §6): acknowledges outgoing consensus messages once
// the transport layer has sequenced them.
func (h *Handler) RemovePendingConsensusTransactions(keys []consensustx.CTK) error {
	batch := h.store.NewBatch()
	for _, k := range keys {
		if err := batch.DeletePendingConsensusTransaction(k); err != nil {
			return err
		}
	}
	return batch.Write()
}

// EpochTerminated implements the upward interface of the same name (spec
// §6, §5): swap the handle to nil, then wait for every epoch-scoped task
// still holding the handle's shared latch to drain.
func (h *Handler) EpochTerminated() {
	h.handle.Terminate()
	h.consensusNotify.Reset()
	h.digestNotify.Reset()
}
