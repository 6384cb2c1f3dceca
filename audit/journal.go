// Package audit persists committed final decisions: an Azure Table journal
// for lookups by application and an Azure queue for downstream consumers.
package audit

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"onboarding-board/domain"
)

// unlinkedPartition holds decisions on tasks without an application.
const unlinkedPartition = "unlinked"

const edmDateTime = "Edm.DateTime"

type tableAPI interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

type decisionEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	TaskID        string `json:"TaskId"`
	EmployeeName  string `json:"EmployeeName,omitempty"`
	EmployeeID    string `json:"EmployeeId,omitempty"`
	Approval      string `json:"ApprovalType"`
	Comments      string `json:"ReviewComments,omitempty"`
	DecidedBy     string `json:"DecidedBy"`
	DecidedAt     string `json:"DecidedAt"`
	DecidedAtType string `json:"DecidedAt@odata.type,omitempty"`
}

// Journal appends decisions to an Azure Table partitioned by application id.
type Journal struct {
	table tableAPI
	newID func() string
}

// NewJournal opens the decisions table from a storage connection string.
func NewJournal(connStr, table string) (*Journal, error) {
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
	return newJournal(svc.NewClient(table)), nil
}

func newJournal(table tableAPI) *Journal {
	return &Journal{table: table, newID: uuid.NewString}
}

// RecordDecision adds one journal row. Rows are never updated.
func (j *Journal) RecordDecision(ctx context.Context, d domain.Decision) error {
	pk := d.ApplicationID
	if pk == "" {
		pk = unlinkedPartition
	}
	ent := decisionEntity{
		PartitionKey:  pk,
		RowKey:        j.newID(),
		TaskID:        d.TaskID,
		EmployeeName:  d.EmployeeName,
		EmployeeID:    d.EmployeeID,
		Approval:      string(d.Approval),
		Comments:      d.Comments,
		DecidedBy:     d.DecidedBy,
		DecidedAt:     d.DecidedAt.UTC().Format(time.RFC3339Nano),
		DecidedAtType: edmDateTime,
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = j.table.AddEntity(ctx, payload, nil)
	return err
}

// ListDecisions returns the decisions of an application, oldest first.
func (j *Journal) ListDecisions(ctx context.Context, applicationID string) ([]domain.Decision, error) {
	filter := "PartitionKey eq '" + strings.ReplaceAll(applicationID, "'", "''") + "'"
	pager := j.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []domain.Decision{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			d, err := decodeDecision(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].DecidedAt.Before(out[b].DecidedAt) })
	return out, nil
}

func decodeDecision(raw []byte) (domain.Decision, error) {
	var ent decisionEntity
	if err := sonic.Unmarshal(raw, &ent); err != nil {
		return domain.Decision{}, err
	}
	d := domain.Decision{
		TaskID:       ent.TaskID,
		EmployeeName: ent.EmployeeName,
		EmployeeID:   ent.EmployeeID,
		Approval:     domain.ApprovalType(ent.Approval),
		Comments:     ent.Comments,
		DecidedBy:    ent.DecidedBy,
	}
	if ent.PartitionKey != unlinkedPartition {
		d.ApplicationID = ent.PartitionKey
	}
	if ent.DecidedAt != "" {
		at, err := time.Parse(time.RFC3339Nano, ent.DecidedAt)
		if err != nil {
			return domain.Decision{}, err
		}
		d.DecidedAt = at
	}
	return d, nil
}
