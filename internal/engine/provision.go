/*
PURPOSE:
  Makes sure a descriptor's container exists before anything runs against it.
  A freshly created container gets a one-time bulk ingest of synthetic
  customers so point reads and queries have data.

REQUIREMENTS:
  User-specified:
  - Create database and container when missing, with fixed throughput.
  - Ingest N customers into a new container only.

  Implementation-discovered:
  - Ingest against a new container gets throttled; pace it with a limiter.
  - A partially ingested container resolves fine afterwards and counts as ready.

ARCHITECTURE INTEGRATION:
  - Called by: Runner.Run, Runner.OpenSession, Suite.InitializeAll
  - Uses: internal/store, internal/generator, x/time/rate, bytefmt

ERROR HANDLING:
  - Every failure is a *ProvisionError naming the step.
  - Only store.ErrNotFound from the metadata read triggers creation;
    anything else (auth, network) is surfaced as is.

IMPLEMENTATION RULES:
  - EnsureReady never mutates the descriptor; callers cache the handle.
*/

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"code.cloudfoundry.org/bytefmt"
	"golang.org/x/time/rate"

	"github.com/daryltucker/cache-bench/internal/generator"
	"github.com/daryltucker/cache-bench/internal/model"
	"github.com/daryltucker/cache-bench/internal/output"
	"github.com/daryltucker/cache-bench/internal/store"
)

const (
	DefaultThroughput    int32 = 6000
	DefaultIngestItems         = 1000
	DefaultProgressEvery       = 100
)

// IngestOptions controls the one-time load into a new container.
type IngestOptions struct {
	Items int
	// MaxRPS caps create calls per second; 0 means unlimited.
	MaxRPS int
	// ProgressEvery logs a progress line every N items; 0 disables it.
	ProgressEvery int
}

// Provisioner implements the "ensure ready" step.
type Provisioner struct {
	throughput int32
	ingest     IngestOptions
	gen        *generator.Generator
}

func NewProvisioner(throughput int32, ingest IngestOptions, gen *generator.Generator) *Provisioner {
	if throughput <= 0 {
		throughput = DefaultThroughput
	}
	if gen == nil {
		gen = generator.New(0)
	}
	return &Provisioner{throughput: throughput, ingest: ingest, gen: gen}
}

// EnsureReady resolves d's container, creating and loading it when missing.
func (p *Provisioner) EnsureReady(ctx context.Context, d *model.Descriptor) (store.Container, error) {
	if d.Client == nil {
		return nil, &ProvisionError{Descriptor: d.Name, Step: "connect", Err: errors.New("no store client configured")}
	}

	c, err := d.Client.ResolveContainer(ctx, d.DatabaseID, d.ContainerID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, &ProvisionError{Descriptor: d.Name, Step: "resolve container", Err: err}
	}

	output.Logger.Info("Container missing, creating",
		"descriptor", d.Name, "database", d.DatabaseID, "container", d.ContainerID, "throughput", p.throughput)

	if err := d.Client.CreateDatabaseIfMissing(ctx, d.DatabaseID); err != nil {
		return nil, &ProvisionError{Descriptor: d.Name, Step: "create database", Err: err}
	}
	c, err = d.Client.CreateContainerIfMissing(ctx, d.DatabaseID, d.ContainerID, d.PartitionKeyPath, p.throughput)
	if err != nil {
		return nil, &ProvisionError{Descriptor: d.Name, Step: "create container", Err: err}
	}

	if err := p.initialIngest(ctx, d, c); err != nil {
		return nil, &ProvisionError{Descriptor: d.Name, Step: "initial ingest", Err: err}
	}
	return c, nil
}

func (p *Provisioner) initialIngest(ctx context.Context, d *model.Descriptor, c store.Container) error {
	n := p.ingest.Items
	if n <= 0 {
		return nil
	}

	limit := rate.Inf
	if p.ingest.MaxRPS > 0 {
		limit = rate.Limit(p.ingest.MaxRPS)
	}
	limiter := rate.NewLimiter(limit, 1)

	customers := p.gen.Many(d.PartitionKeyValue, n)
	output.Logger.Info("Initial data ingest", "descriptor", d.Name, "items", n, "max_rps", p.ingest.MaxRPS)

	var bytes uint64
	var charge float64
	for i, customer := range customers {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		cost, err := c.CreateItem(ctx, customer, d.PartitionKeyValue)
		if err != nil {
			return fmt.Errorf("item %d of %d: %w", i+1, n, err)
		}
		charge += cost
		if raw, err := json.Marshal(customer); err == nil {
			bytes += uint64(len(raw))
		}

		if p.ingest.ProgressEvery > 0 && (i+1)%p.ingest.ProgressEvery == 0 {
			output.Logger.Info("Bulk inserted items", "descriptor", d.Name, "count", i+1, "volume", bytefmt.ByteSize(bytes))
		}
	}

	output.Logger.Info("Initial ingest complete",
		"descriptor", d.Name, "items", n, "volume", bytefmt.ByteSize(bytes), "total_ru", fmt.Sprintf("%.1f", charge))
	return nil
}
