package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"boardsync/domain"
)

const (
	azPartitionKey = "document"
	azRowKey       = "status"
)

// AzureTables stores the document in a single table entity. The entity ETag
// is the revision token: UpdateEntity with If-Match fails with 412 when the
// entity changed since the read, which is exactly the optimistic check.
type AzureTables struct {
	table *aztables.Client
}

// NewAzureTables creates a store on the given table.
func NewAzureTables(connStr, table string) (*AzureTables, error) {
	if connStr == "" || table == "" {
		return nil, fmt.Errorf("missing azure storage config: %w", domain.ErrMisconfigured)
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, err
	}
	return &AzureTables{table: svc.NewClient(table)}, nil
}

// Init creates the backing table when it does not exist yet.
func (a *AzureTables) Init(ctx context.Context) error {
	_, err := a.table.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return fmt.Errorf("aztables create table: %w", err)
	}
	return nil
}

type documentEntity struct {
	aztables.Entity
	ETag    string `json:"odata.etag,omitempty"`
	Content string `json:"Content"`
}

// Get reads the document entity; its ETag becomes the revision token.
func (a *AzureTables) Get(ctx context.Context) (Snapshot, error) {
	resp, err := a.table.GetEntity(ctx, azPartitionKey, azRowKey, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return Snapshot{Content: []byte("{}"), Revision: ""}, nil
		}
		return Snapshot{}, fmt.Errorf("aztables read: %w", err)
	}
	var ent documentEntity
	if err := sonic.ConfigStd.Unmarshal(resp.Value, &ent); err != nil {
		return Snapshot{}, fmt.Errorf("aztables entity: %v: %w", err, domain.ErrParse)
	}
	return Snapshot{Content: []byte(ent.Content), Revision: ent.ETag}, nil
}

// Put replaces the document entity, guarded by the ETag from the read. An
// empty revision inserts the entity for the first time.
func (a *AzureTables) Put(ctx context.Context, content []byte, revision, _ string) error {
	ent := documentEntity{
		Entity:  aztables.Entity{PartitionKey: azPartitionKey, RowKey: azRowKey},
		Content: string(content),
	}
	payload, err := sonic.ConfigStd.Marshal(ent)
	if err != nil {
		return err
	}
	if revision == "" {
		if _, err := a.table.AddEntity(ctx, payload, nil); err != nil {
			var respErr *azcore.ResponseError
			if errors.As(err, &respErr) && respErr.StatusCode == 409 {
				return fmt.Errorf("document already created: %w", domain.ErrConflict)
			}
			return fmt.Errorf("aztables insert: %w", err)
		}
		return nil
	}
	et := azcore.ETag(revision)
	_, err = a.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 412 {
			return fmt.Errorf("revision %s superseded: %w", revision, domain.ErrConflict)
		}
		return fmt.Errorf("aztables update: %w", err)
	}
	return nil
}
