package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"finsync/application/ports"
	"finsync/domain/core/entities"
)

const profileSK = "PROFILE"

type accountItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	EntityType   string `dynamodbav:"EntityType"`
	AccountID    string `dynamodbav:"AccountID"`
	Email        string `dynamodbav:"Email"`
	DisplayName  string `dynamodbav:"DisplayName"`
	PasswordHash string `dynamodbav:"PasswordHash"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
}

type emailItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	AccountID  string `dynamodbav:"AccountID"`
}

func emailPK(email string) string { return "EMAIL#" + email }

// AccountDirectory stores accounts with an email guard item for uniqueness
type AccountDirectory struct {
	*Table
}

func NewAccountDirectory(client API, tableName string) *AccountDirectory {
	return &AccountDirectory{Table: NewTable(client, tableName)}
}

func (d *AccountDirectory) Create(ctx context.Context, account *entities.Account) error {
	email := account.Email().String()
	profile, err := attributevalue.MarshalMap(accountItem{
		PK:           accountPK(account.ID()),
		SK:           profileSK,
		EntityType:   "ACCOUNT",
		AccountID:    account.ID(),
		Email:        email,
		DisplayName:  account.DisplayName(),
		PasswordHash: account.PasswordHash(),
		CreatedAt:    formatTime(account.CreatedAt()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	guard, err := attributevalue.MarshalMap(emailItem{
		PK:         emailPK(email),
		SK:         "EMAIL",
		EntityType: "ACCOUNT_EMAIL",
		AccountID:  account.ID(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal account email: %w", err)
	}

	_, err = d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(d.name),
				Item:                guard,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(d.name),
				Item:                profile,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if cancelledAt(err, 0) {
		return ports.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (d *AccountDirectory) GetByID(ctx context.Context, id string) (*entities.Account, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.name),
		Key:       key(accountPK(id), profileSK),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if out.Item == nil {
		return nil, ports.ErrAccountNotFound
	}
	var item accountItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return entities.ReconstructAccount(item.AccountID, item.Email, item.DisplayName, item.PasswordHash, parseTime(item.CreatedAt)), nil
}

func (d *AccountDirectory) GetByEmail(ctx context.Context, email string) (*entities.Account, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.name),
		Key:       key(emailPK(email), "EMAIL"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account email: %w", err)
	}
	if out.Item == nil {
		return nil, ports.ErrAccountNotFound
	}
	var guard emailItem
	if err := attributevalue.UnmarshalMap(out.Item, &guard); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account email: %w", err)
	}
	return d.GetByID(ctx, guard.AccountID)
}
