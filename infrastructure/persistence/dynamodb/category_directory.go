package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"finsync/application/ports"
	"finsync/domain/core/entities"
)

const (
	categorySKPrefix = "CATEGORY#"
	categoryNameSK   = "CATNAME#"
	categoryCounter  = "COUNTER#CATEGORY"
)

type categoryItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	AccountID  string `dynamodbav:"AccountID"`
	CategoryID int64  `dynamodbav:"CategoryID"`
	Name       string `dynamodbav:"Name"`
	NameKey    string `dynamodbav:"NameKey"`
	Kind       string `dynamodbav:"Kind"`
	SortOrder  int    `dynamodbav:"SortOrder"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

// nameGuardItem reserves a lower-cased name within an account
type nameGuardItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	CategoryID int64  `dynamodbav:"CategoryID"`
}

func categorySK(id int64) string {
	return categorySKPrefix + fmt.Sprintf("%019d", id)
}

func nameKey(name string) string {
	return strings.ToLower(name)
}

func (i categoryItem) toEntity() *entities.Category {
	return entities.ReconstructCategory(i.CategoryID, i.AccountID, i.Name, i.Kind, i.SortOrder, parseTime(i.CreatedAt), parseTime(i.UpdatedAt))
}

func itemFromCategory(c *entities.Category) categoryItem {
	return categoryItem{
		PK:         accountPK(c.AccountID()),
		SK:         categorySK(c.ID()),
		EntityType: "CATEGORY",
		AccountID:  c.AccountID(),
		CategoryID: c.ID(),
		Name:       c.Name().String(),
		NameKey:    c.Name().Key(),
		Kind:       string(c.Kind()),
		SortOrder:  c.SortOrder(),
		CreatedAt:  formatTime(c.CreatedAt()),
		UpdatedAt:  formatTime(c.UpdatedAt()),
	}
}

// CategoryDirectory stores categories next to the account's snapshot. Name
// uniqueness is enforced with guard items written in the same transaction.
type CategoryDirectory struct {
	*Table
	logger *zap.Logger
}

func NewCategoryDirectory(client API, tableName string, logger *zap.Logger) *CategoryDirectory {
	return &CategoryDirectory{Table: NewTable(client, tableName), logger: logger}
}

func (d *CategoryDirectory) List(ctx context.Context, accountID string) ([]*entities.Category, error) {
	keyEx := expression.Key("PK").Equal(expression.Value(accountPK(accountID))).
		And(expression.Key("SK").BeginsWith(categorySKPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var out []*entities.Category
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(d.name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	}
	for {
		page, err := d.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query categories: %w", err)
		}
		var items []categoryItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
		for _, item := range items {
			out = append(out, item.toEntity())
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder() != out[j].SortOrder() {
			return out[i].SortOrder() < out[j].SortOrder()
		}
		return out[i].Name().Key() < out[j].Name().Key()
	})
	return out, nil
}

func (d *CategoryDirectory) Get(ctx context.Context, accountID string, id int64) (*entities.Category, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.name),
		Key:            key(accountPK(accountID), categorySK(id)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	if out.Item == nil {
		return nil, ports.ErrCategoryNotFound
	}
	var item categoryItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal category: %w", err)
	}
	return item.toEntity(), nil
}

func (d *CategoryDirectory) FindByName(ctx context.Context, accountID string, name string) (*entities.Category, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.name),
		Key:            key(accountPK(accountID), categoryNameSK+nameKey(name)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get category name: %w", err)
	}
	if out.Item == nil {
		return nil, ports.ErrCategoryNotFound
	}
	var guard nameGuardItem
	if err := attributevalue.UnmarshalMap(out.Item, &guard); err != nil {
		return nil, fmt.Errorf("failed to unmarshal category name: %w", err)
	}
	return d.Get(ctx, accountID, guard.CategoryID)
}

// nextID increments the per-account category counter
func (d *CategoryDirectory) nextID(ctx context.Context, accountID string) (int64, error) {
	update := expression.Add(expression.Name("Seq"), expression.Value(1))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build counter update: %w", err)
	}
	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.name),
		Key:                       key(accountPK(accountID), categoryCounter),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment category counter: %w", err)
	}
	seq, ok := out.Attributes["Seq"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("category counter returned no sequence")
	}
	return strconv.ParseInt(seq.Value, 10, 64)
}

func (d *CategoryDirectory) guardPut(accountID, name string, id int64) (*types.Put, error) {
	av, err := attributevalue.MarshalMap(nameGuardItem{
		PK:         accountPK(accountID),
		SK:         categoryNameSK + nameKey(name),
		EntityType: "CATEGORY_NAME",
		CategoryID: id,
	})
	if err != nil {
		return nil, err
	}
	return &types.Put{
		TableName:           aws.String(d.name),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	}, nil
}

func (d *CategoryDirectory) Create(ctx context.Context, category *entities.Category) error {
	id, err := d.nextID(ctx, category.AccountID())
	if err != nil {
		return err
	}

	guard, err := d.guardPut(category.AccountID(), category.Name().String(), id)
	if err != nil {
		return fmt.Errorf("failed to marshal category name: %w", err)
	}
	item := itemFromCategory(category)
	item.CategoryID = id
	item.SK = categorySK(id)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal category: %w", err)
	}

	_, err = d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: guard},
			{Put: &types.Put{
				TableName:           aws.String(d.name),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if cancelledAt(err, 0) {
		return ports.ErrDuplicateCategoryName
	}
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}

	category.AssignID(id)
	return nil
}

func (d *CategoryDirectory) Update(ctx context.Context, category *entities.Category) error {
	current, err := d.Get(ctx, category.AccountID(), category.ID())
	if err != nil {
		return err
	}

	av, err := attributevalue.MarshalMap(itemFromCategory(category))
	if err != nil {
		return fmt.Errorf("failed to marshal category: %w", err)
	}
	writes := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(d.name),
			Item:                av,
			ConditionExpression: aws.String("attribute_exists(PK)"),
		},
	}}

	renamed := current.Name().Key() != category.Name().Key()
	if renamed {
		guard, err := d.guardPut(category.AccountID(), category.Name().String(), category.ID())
		if err != nil {
			return fmt.Errorf("failed to marshal category name: %w", err)
		}
		writes = append(writes,
			types.TransactWriteItem{Put: guard},
			types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(d.name),
				Key:       key(accountPK(category.AccountID()), categoryNameSK+current.Name().Key()),
			}},
		)
	}

	_, err = d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	switch {
	case err == nil:
		return nil
	case cancelledAt(err, 0):
		return ports.ErrCategoryNotFound
	case renamed && cancelledAt(err, 1):
		return ports.ErrDuplicateCategoryName
	default:
		return fmt.Errorf("failed to update category: %w", err)
	}
}

func (d *CategoryDirectory) Delete(ctx context.Context, accountID string, id int64) error {
	current, err := d.Get(ctx, accountID, id)
	if err != nil {
		return err
	}

	_, err = d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           aws.String(d.name),
				Key:                 key(accountPK(accountID), categorySK(id)),
				ConditionExpression: aws.String("attribute_exists(PK)"),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(d.name),
				Key:       key(accountPK(accountID), categoryNameSK+current.Name().Key()),
			}},
		},
	})
	if cancelledAt(err, 0) {
		return ports.ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}
