package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf16"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

// TableKV stores each key as a row of an Azure Table. All rows share one partition.
type TableKV struct {
	table     tableClient
	partition string
}

const (
	valueProperty = "Value"
	// maxPropertyUnits is the service limit for a string property, in UTF-16 code units.
	maxPropertyUnits = 32 * 1024
	// maxValueChunks keeps an entity below the 1 MiB entity limit.
	maxValueChunks = 15
)

// ErrValueTooLarge is returned by TableKV.Set when a value cannot fit in one entity.
var ErrValueTooLarge = errors.New("storage: value exceeds table entity size")

// NewTableKV connects to the named table, creating it when missing.
func NewTableKV(ctx context.Context, connStr, tableName, partition string) (*TableKV, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	client := svc.NewClient(tableName)
	if _, err := client.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return nil, err
		}
	}
	return newTableKV(client, partition), nil
}

func newTableKV(client tableClient, partition string) *TableKV {
	if partition == "" {
		partition = "taskboard"
	}
	return &TableKV{table: client, partition: partition}
}

func (t *TableKV) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrInvalidKey
	}
	resp, err := t.table.GetEntity(ctx, t.partition, key, nil)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	var ent map[string]any
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return "", false, err
	}
	value, err := joinValue(ent)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (t *TableKV) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}
	chunks := splitValue(value, maxPropertyUnits)
	if len(chunks) > maxValueChunks {
		return fmt.Errorf("%w: %d properties needed for %q", ErrValueTooLarge, len(chunks), key)
	}
	ent := map[string]any{"PartitionKey": t.partition, "RowKey": key}
	for i, chunk := range chunks {
		ent[chunkProperty(i)] = chunk
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = t.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (t *TableKV) Delete(ctx context.Context, key string) error {
	if _, err := t.table.DeleteEntity(ctx, t.partition, key, nil); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// splitValue cuts v on rune boundaries into pieces of at most limit UTF-16 code units.
func splitValue(v string, limit int) []string {
	var chunks []string
	start, units := 0, 0
	for i, r := range v {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > limit {
			chunks = append(chunks, v[start:i])
			start, units = i, 0
		}
		units += n
	}
	return append(chunks, v[start:])
}

// joinValue reassembles Value, Value1, Value2, ... until the first missing property.
func joinValue(ent map[string]any) (string, error) {
	var out []byte
	for i := 0; ; i++ {
		raw, ok := ent[chunkProperty(i)]
		if !ok {
			if i == 0 {
				return "", fmt.Errorf("storage: entity has no %s property", valueProperty)
			}
			return string(out), nil
		}
		chunk, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("storage: property %s is not a string", chunkProperty(i))
		}
		out = append(out, chunk...)
	}
}

func chunkProperty(i int) string {
	if i == 0 {
		return valueProperty
	}
	return valueProperty + strconv.Itoa(i)
}
