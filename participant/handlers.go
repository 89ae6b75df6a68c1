package participant

import (
	"time"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wal"
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wire"
	"go.uber.org/zap"
)

// handleVoteRequest implements spec §4.4's PREPARING path at the
// participant. askUser runs outside the mutex since it may block on a
// human; the lock-check, stage, and fsync happen atomically under the
// mutex so two overlapping VOTE_REQUESTs can never both win the same
// file.
func (p *Participant) handleVoteRequest(srcID string, m *wire.VoteRequest) {
	log := p.log.With(zap.Uint32("tid", m.Txn), zap.String("from", srcID))

	approved := p.ask(m.Image, m.Files)
	if !approved {
		log.Info("vote NO: user refused")
		if p.metrics != nil {
			p.metrics.Votes.WithLabelValues("no").Inc()
		}
		p.sendVote(srcID, m.Txn, false)
		return
	}

	p.mu.Lock()
	conflict := false
	for _, f := range m.Files {
		if p.locked[f] {
			conflict = true
			break
		}
	}
	if conflict {
		p.mu.Unlock()
		log.Info("vote NO: file contention")
		if p.metrics != nil {
			p.metrics.Votes.WithLabelValues("no").Inc()
		}
		p.sendVote(srcID, m.Txn, false)
		return
	}

	start := time.Now()
	if err := p.appendAndSync(wal.EncodeStaged(m.Txn, m.Files)); err != nil {
		p.mu.Unlock()
		log.Error("failed to log staged commit, voting NO", zap.Error(err))
		p.sendVote(srcID, m.Txn, false)
		return
	}
	if p.metrics != nil {
		p.metrics.FsyncSeconds.Observe(time.Since(start).Seconds())
	}

	for _, f := range m.Files {
		p.locked[f] = true
	}
	p.staged[m.Txn] = m.Files
	p.coordinators[m.Txn] = srcID
	if p.metrics != nil {
		p.metrics.LockedFiles.Set(float64(len(p.locked)))
	}
	p.mu.Unlock()

	log.Info("vote YES", zap.Strings("files", m.Files))
	if p.metrics != nil {
		p.metrics.Votes.WithLabelValues("yes").Inc()
	}
	p.sendVote(srcID, m.Txn, true)
}

// handleVoteOutcome implements spec §4.4's apply path. It is idempotent:
// a duplicate OUTCOME for an already-applied TID re-acks without
// repeating the file operation, and an OUTCOME for a TID this node never
// staged (e.g. its own VOTE_RESPONSE was lost after a crash and the
// coordinator decided without it) still acks and logs, per the
// defensive-ack rule in spec §7.
func (p *Participant) handleVoteOutcome(srcID string, m *wire.VoteOutcome) {
	log := p.log.With(zap.Uint32("tid", m.Txn), zap.String("from", srcID), zap.Bool("commit", m.Commit))

	p.mu.Lock()
	files, known := p.staged[m.Txn]
	alreadyApplied := p.applied[m.Txn]

	if known && !alreadyApplied {
		var applyErr error
		if m.Commit {
			for _, f := range files {
				if err := deleteIfExists(f); err != nil {
					applyErr = err
					break
				}
			}
		}
		for _, f := range files {
			delete(p.locked, f)
		}
		if p.metrics != nil {
			p.metrics.LockedFiles.Set(float64(len(p.locked)))
		}
		if applyErr != nil {
			p.mu.Unlock()
			log.Error("failed to apply decision", zap.Error(applyErr))
			return
		}
		p.applied[m.Txn] = true
	}
	p.mu.Unlock()

	if !known {
		log.Warn("outcome for unknown transaction, acking defensively")
	} else if alreadyApplied {
		log.Debug("outcome already applied, re-acking")
	} else {
		log.Info("decision applied")
	}

	start := time.Now()
	if err := p.appendAndSync(wal.EncodeApplied(m.Txn)); err != nil {
		log.Error("failed to log applied record", zap.Error(err))
	} else if p.metrics != nil {
		p.metrics.FsyncSeconds.Observe(time.Since(start).Seconds())
	}

	p.sendAck(srcID, m.Txn)
}
