package service

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/inventario-import-api/internal/models"
	"github.com/inventario-import-api/internal/repository"
)

// saltoContadores is the counter jump that forces a push even when the
// progress float barely moved
const saltoContadores = 50

// Notifier is the single status source behind both delivery strategies:
// pull (GetStatus snapshot) and push (Subscribe, emitting on change). Both
// read the same underlying state, so they can never diverge.
type Notifier struct {
	jobs     repository.JobRepository
	deltaPct float64
	log      zerolog.Logger

	mu      sync.Mutex
	subs    map[string]map[int]chan models.ImportJob
	nextID  int
	ultimos map[string]models.ImportJob // last snapshot emitted per job
}

// NewNotifier creates the notifier; deltaPct is the minimum progress change
// pushed to subscribers between state changes
func NewNotifier(jobs repository.JobRepository, deltaPct float64, log zerolog.Logger) *Notifier {
	return &Notifier{
		jobs:     jobs,
		deltaPct: deltaPct,
		log:      log.With().Str("component", "notifier").Logger(),
		subs:     make(map[string]map[int]chan models.ImportJob),
		ultimos:  make(map[string]models.ImportJob),
	}
}

// GetStatus returns the current job snapshot; idempotent and side-effect-free
func (n *Notifier) GetStatus(ctx context.Context, id string) (*models.ImportJob, error) {
	return n.jobs.GetByID(ctx, id)
}

// Subscribe registers for push updates on one job. The returned cancel
// function must be called when the subscriber goes away. The channel closes
// after the terminal snapshot is delivered.
func (n *Notifier) Subscribe(id string) (<-chan models.ImportJob, func()) {
	ch := make(chan models.ImportJob, 16)

	n.mu.Lock()
	defer n.mu.Unlock()

	// A job already terminal gets its final snapshot and an immediate close
	if ultimo, ok := n.ultimos[id]; ok && ultimo.Estado.Terminal() {
		ch <- ultimo
		close(ch)
		return ch, func() {}
	}

	n.nextID++
	subID := n.nextID
	if n.subs[id] == nil {
		n.subs[id] = make(map[int]chan models.ImportJob)
	}
	n.subs[id][subID] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id][subID]; ok {
			delete(n.subs[id], subID)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish feeds a fresh snapshot into the push channel. Near-duplicate
// updates are suppressed: only state changes, progress moves of at least
// deltaPct, and terminal snapshots go out.
func (n *Notifier) Publish(job *models.ImportJob) {
	snap := *job

	n.mu.Lock()
	defer n.mu.Unlock()

	ultimo, visto := n.ultimos[snap.ID]
	if visto && !n.significativo(ultimo, snap) {
		return
	}
	n.ultimos[snap.ID] = snap

	terminal := snap.Estado.Terminal()
	for subID, ch := range n.subs[snap.ID] {
		select {
		case ch <- snap:
		default:
			if !terminal {
				// Slow subscriber: drop the update, it can still poll
				n.log.Debug().Str("job_id", snap.ID).Int("sub", subID).Msg("Subscriber buffer full, update dropped")
				continue
			}
			// The final snapshot must land even on a backed-up subscriber:
			// evict the oldest buffered update to make room. Only Publish
			// sends on these channels, so the freed slot cannot be refilled
			// before the send below.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}

	if terminal {
		for subID, ch := range n.subs[snap.ID] {
			delete(n.subs[snap.ID], subID)
			close(ch)
		}
		delete(n.subs, snap.ID)
	}
}

func (n *Notifier) significativo(antes, ahora models.ImportJob) bool {
	if ahora.Estado != antes.Estado || ahora.Estado.Terminal() {
		return true
	}
	if ahora.Etapa != antes.Etapa {
		return true
	}
	if math.Abs(ahora.Progreso-antes.Progreso) >= n.deltaPct {
		return true
	}
	return ahora.RegistrosProcesados-antes.RegistrosProcesados >= saltoContadores
}
