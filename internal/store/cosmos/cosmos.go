/*
PURPOSE:
  Production store.Client backed by the Azure Cosmos DB Go SDK.
  One Client per account endpoint; dedicated-gateway and regular accounts are
  simply different endpoints.

REQUIREMENTS:
  User-specified:
  - Create/read/upsert/query against a container with per-request consistency.
  - Create database/container when missing, delete database on cleanup.

  Implementation-discovered:
  - The SDK reports request charge as float32 on every response.
  - Queries go through the SDK pager; one pager per execution.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (through store interfaces), internal/cli (Open)
  - Uses: azcosmos, azcore

ERROR HANDLING:
  - 404 responses become store.ErrNotFound, 409 become store.ErrConflict,
    both wrapped so the SDK error is still reachable.

USAGE:
  c, err := cosmos.Open(model.Connection{Endpoint: ..., Key: ...})
*/

package cosmos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/daryltucker/cache-bench/internal/model"
	"github.com/daryltucker/cache-bench/internal/store"
)

// Client implements store.Client for one Cosmos DB account.
type Client struct {
	endpoint string
	client   *azcosmos.Client
}

// Open creates a key-authenticated client for conn.
func Open(conn model.Connection) (store.Client, error) {
	if conn.Endpoint == "" {
		return nil, fmt.Errorf("account %q has no endpoint", conn.Account)
	}
	cred, err := azcosmos.NewKeyCredential(conn.Key)
	if err != nil {
		return nil, fmt.Errorf("account %q: invalid key: %w", conn.Account, err)
	}
	c, err := azcosmos.NewClientWithKey(conn.Endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", conn.Account, err)
	}
	return &Client{endpoint: conn.Endpoint, client: c}, nil
}

func (c *Client) ResolveContainer(ctx context.Context, databaseID, containerID string) (store.Container, error) {
	cc, err := c.client.NewContainer(databaseID, containerID)
	if err != nil {
		return nil, err
	}
	if _, err := cc.Read(ctx, nil); err != nil {
		return nil, classify(err)
	}
	return &Container{client: cc, id: containerID}, nil
}

func (c *Client) CreateDatabaseIfMissing(ctx context.Context, databaseID string) error {
	_, err := c.client.CreateDatabase(ctx, azcosmos.DatabaseProperties{ID: databaseID}, nil)
	if err = classify(err); err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}
	return nil
}

func (c *Client) CreateContainerIfMissing(ctx context.Context, databaseID, containerID, partitionKeyPath string, throughput int32) (store.Container, error) {
	db, err := c.client.NewDatabase(databaseID)
	if err != nil {
		return nil, err
	}
	props := azcosmos.ContainerProperties{
		ID: containerID,
		PartitionKeyDefinition: azcosmos.PartitionKeyDefinition{
			Paths: []string{partitionKeyPath},
		},
	}
	tp := azcosmos.NewManualThroughputProperties(throughput)
	_, err = db.CreateContainer(ctx, props, &azcosmos.CreateContainerOptions{ThroughputProperties: &tp})
	if err = classify(err); err != nil && !errors.Is(err, store.ErrConflict) {
		return nil, err
	}
	cc, err := db.NewContainer(containerID)
	if err != nil {
		return nil, err
	}
	return &Container{client: cc, id: containerID}, nil
}

func (c *Client) DeleteDatabase(ctx context.Context, databaseID string) error {
	db, err := c.client.NewDatabase(databaseID)
	if err != nil {
		return err
	}
	_, err = db.Delete(ctx, nil)
	return classify(err)
}

// Container implements store.Container.
type Container struct {
	client *azcosmos.ContainerClient
	id     string
}

func (c *Container) ID() string { return c.id }

func (c *Container) CreateItem(ctx context.Context, item any, partitionKey string) (float64, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.CreateItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), data, nil)
	if err != nil {
		return 0, classify(err)
	}
	return float64(resp.RequestCharge), nil
}

func (c *Container) UpsertItem(ctx context.Context, item any, partitionKey string) (float64, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.UpsertItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), data, nil)
	if err != nil {
		return 0, classify(err)
	}
	return float64(resp.RequestCharge), nil
}

func (c *Container) ReadItem(ctx context.Context, id, partitionKey string, consistency store.Consistency, out any) (float64, error) {
	opts := &azcosmos.ItemOptions{ConsistencyLevel: consistencyLevel(consistency)}
	resp, err := c.client.ReadItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), id, opts)
	if err != nil {
		return 0, classify(err)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Value, out); err != nil {
			return float64(resp.RequestCharge), fmt.Errorf("decoding item %s: %w", id, err)
		}
	}
	return float64(resp.RequestCharge), nil
}

func (c *Container) Query(ctx context.Context, queryText, partitionKey string, consistency store.Consistency) store.Pager {
	opts := &azcosmos.QueryOptions{ConsistencyLevel: consistencyLevel(consistency)}
	return &pager{p: c.client.NewQueryItemsPager(queryText, azcosmos.NewPartitionKeyString(partitionKey), opts)}
}

type pager struct {
	p *runtime.Pager[azcosmos.QueryItemsResponse]
}

func (p *pager) More() bool { return p.p.More() }

func (p *pager) NextPage(ctx context.Context) (store.Page, error) {
	resp, err := p.p.NextPage(ctx)
	if err != nil {
		return store.Page{}, classify(err)
	}
	return store.Page{Items: resp.Items, Cost: float64(resp.RequestCharge)}, nil
}

func consistencyLevel(c store.Consistency) *azcosmos.ConsistencyLevel {
	switch c {
	case store.ConsistencyStrong:
		return azcosmos.ConsistencyLevelStrong.ToPtr()
	case store.ConsistencyBoundedStaleness:
		return azcosmos.ConsistencyLevelBoundedStaleness.ToPtr()
	case store.ConsistencySession:
		return azcosmos.ConsistencyLevelSession.ToPtr()
	case store.ConsistencyConsistentPrefix:
		return azcosmos.ConsistencyLevelConsistentPrefix.ToPtr()
	case store.ConsistencyEventual:
		return azcosmos.ConsistencyLevelEventual.ToPtr()
	}
	return nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", store.ErrNotFound, err)
		case http.StatusConflict:
			return fmt.Errorf("%w: %w", store.ErrConflict, err)
		}
	}
	return err
}
