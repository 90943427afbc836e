package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// clientSecuencia returns a scripted series of snapshots, repeating the last
// one once the script runs out
type clientSecuencia struct {
	mu       sync.Mutex
	estados  []Status
	fallos   map[int]error // poll index -> injected error
	llamadas int
}

func (c *clientSecuencia) GetStatus(ctx context.Context, trabajoID string) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.llamadas
	c.llamadas++
	if err, ok := c.fallos[idx]; ok {
		return Status{}, err
	}
	if idx >= len(c.estados) {
		idx = len(c.estados) - 1
	}
	s := c.estados[idx]
	s.TrabajoID = trabajoID
	return s, nil
}

func TestWait_HastaTerminal(t *testing.T) {
	client := &clientSecuencia{estados: []Status{
		{Estado: "pendiente", Progreso: 0},
		{Estado: "procesando", Progreso: 40},
		{Estado: "procesando", Progreso: 80},
		{Estado: "completado", Progreso: 100},
	}}

	var observados []float64
	p := New(client, WithInterval(time.Millisecond))
	p.OnUpdate = func(s Status) { observados = append(observados, s.Progreso) }

	res, err := p.Wait(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if res.Status.Estado != "completado" {
		t.Errorf("estado = %s, want completado", res.Status.Estado)
	}
	if res.Polls != 4 {
		t.Errorf("polls = %d, want 4", res.Polls)
	}
	if res.TimedOut {
		t.Error("session should not have timed out")
	}
	if len(observados) != 4 || observados[3] != 100 {
		t.Errorf("observed progress = %v", observados)
	}
}

func TestWait_DeadlineNoEsFallo(t *testing.T) {
	client := &clientSecuencia{estados: []Status{
		{Estado: "procesando", Progreso: 10},
	}}

	p := New(client, WithInterval(time.Millisecond), WithMaxWait(30*time.Millisecond))
	res, err := p.Wait(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("deadline must not surface as an error: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("session should be marked as timed out")
	}
	if res.Status.Estado != "procesando" {
		t.Errorf("last snapshot = %s, want procesando", res.Status.Estado)
	}
	if !strings.Contains(res.Status.Mensaje, "segundo plano") {
		t.Errorf("timeout message should note the job may continue, got %q", res.Status.Mensaje)
	}
}

func TestWait_ErroresTransitoriosNoCortan(t *testing.T) {
	client := &clientSecuencia{
		estados: []Status{
			{Estado: "procesando", Progreso: 10},
			{Estado: "procesando", Progreso: 10}, // consumed by the failing slot
			{Estado: "completado", Progreso: 100},
		},
		fallos: map[int]error{1: errors.New("timeout de red")},
	}

	p := New(client, WithInterval(time.Millisecond))
	res, err := p.Wait(context.Background(), "job-3")
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if res.Status.Estado != "completado" {
		t.Errorf("estado = %s, want completado", res.Status.Estado)
	}
	// The failed fetch does not count as a poll result
	if res.Polls != 2 {
		t.Errorf("polls = %d, want 2", res.Polls)
	}
}

func TestWait_FalloInicialSinSnapshot(t *testing.T) {
	fallo := errors.New("servicio no disponible")
	client := &clientSecuencia{
		estados: []Status{{Estado: "procesando"}},
		fallos:  map[int]error{0: fallo},
	}

	p := New(client, WithInterval(time.Millisecond))
	if _, err := p.Wait(context.Background(), "job-4"); !errors.Is(err, fallo) {
		t.Errorf("Wait error = %v, want the fetch error when no snapshot was ever obtained", err)
	}
}

func TestWait_SinTrabajo(t *testing.T) {
	p := New(&clientSecuencia{estados: []Status{{}}})
	if _, err := p.Wait(context.Background(), ""); !errors.Is(err, ErrSinTrabajo) {
		t.Errorf("Wait error = %v, want ErrSinTrabajo", err)
	}
}

func TestWait_CancelacionDelContexto(t *testing.T) {
	client := &clientSecuencia{estados: []Status{
		{Estado: "procesando", Progreso: 10},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	p := New(client, WithInterval(50*time.Millisecond))

	done := make(chan struct{})
	var err error
	go func() {
		_, err = p.Wait(ctx, "job-5")
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Wait error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after context cancellation")
	}
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		estado string
		want   bool
	}{
		{"pendiente", false},
		{"procesando", false},
		{"completado", true},
		{"error", true},
		{"cancelado", true},
	}
	for _, tt := range tests {
		if got := (Status{Estado: tt.estado}).Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.estado, got, tt.want)
		}
	}
}
