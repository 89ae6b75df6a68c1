package participant

import (
	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/wal"
	"go.uber.org/zap"
)

// Recover replays this participant's own WAL before any live traffic is
// accepted (spec §4.5): a RecStaged with no matching RecApplied means the
// crash happened between voting YES and receiving the outcome, so the
// lock is reinstated and a VOTE_RESPONSE(commit=true) is resent to
// CoordinatorAddr — the only coordinator this deployment ever talks to,
// since the staged-commit record itself carries no sender address.
func (p *Participant) Recover(path string) error {
	staged := make(map[uint32][]string)
	applied := make(map[uint32]bool)

	err := wal.Replay(path, func(r wal.Record) error {
		switch r.Type {
		case wal.RecStaged:
			staged[r.TID] = r.Files
		case wal.RecApplied:
			applied[r.TID] = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	var resend []uint32
	for tid, files := range staged {
		if applied[tid] {
			continue
		}
		for _, f := range files {
			p.locked[f] = true
		}
		p.staged[tid] = files
		p.coordinators[tid] = p.CoordinatorAddr
		resend = append(resend, tid)
	}
	if p.metrics != nil {
		p.metrics.LockedFiles.Set(float64(len(p.locked)))
	}
	p.mu.Unlock()

	for _, tid := range resend {
		p.log.Info("recovery: resending YES vote for unresolved staged transaction", zap.Uint32("tid", tid))
		p.sendVote(p.CoordinatorAddr, tid, true)
	}
	return nil
}
