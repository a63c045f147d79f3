// Package addresses stores customers' saved addresses.
package addresses

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/imrishuroy/storefront-checkout/internal/aws"
)

// OwnerIndex is the GSI on owner_id.
const OwnerIndex = "owner_id-index"

// Address types.
const (
	TypeShipping = "shipping"
	TypeBilling  = "billing"
	TypeBoth     = "both"
)

// ErrNotFound is returned when the address does not exist or belongs to someone else.
var ErrNotFound = errors.New("address not found")

// Address is a saved address.
type Address struct {
	ID          string    `dynamodbav:"id" json:"id"`
	OwnerID     string    `dynamodbav:"owner_id" json:"owner_id"`
	Label       string    `dynamodbav:"label,omitempty" json:"label,omitempty"`
	Street      string    `dynamodbav:"street" json:"street"`
	Number      string    `dynamodbav:"number" json:"number"`
	Complement  string    `dynamodbav:"complement,omitempty" json:"complement,omitempty"`
	City        string    `dynamodbav:"city" json:"city"`
	State       string    `dynamodbav:"state" json:"state"`
	PostalCode  string    `dynamodbav:"postal_code" json:"postal_code"`
	Country     string    `dynamodbav:"country" json:"country"`
	IsDefault   bool      `dynamodbav:"is_default" json:"is_default"`
	AddressType string    `dynamodbav:"address_type" json:"address_type"`
	CreatedAt   time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// Store encapsulates operations on the addresses table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates an addresses Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// List returns the owner's addresses, default first, then newest first.
func (s *Store) List(ctx context.Context, ownerID string) ([]Address, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(OwnerIndex),
		KeyConditionExpression: awsString("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	list := make([]Address, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &list); err != nil {
		return nil, fmt.Errorf("unmarshal addresses: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].IsDefault != list[j].IsDefault {
			return list[i].IsDefault
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// Create stores a new address. The owner's first address becomes the default;
// a new default clears the previous one in the same transaction.
func (s *Store) Create(ctx context.Context, addr Address) (*Address, error) {
	existing, err := s.List(ctx, addr.OwnerID)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	addr.ID = uuid.NewString()
	addr.CreatedAt = now
	addr.UpdatedAt = now
	if addr.AddressType == "" {
		addr.AddressType = TypeShipping
	}
	if len(existing) == 0 {
		addr.IsDefault = true
	}

	item, err := attributevalue.MarshalMap(addr)
	if err != nil {
		return nil, fmt.Errorf("marshal address: %w", err)
	}
	tx := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(id)"),
		},
	}}
	if addr.IsDefault {
		tx = append(tx, s.unsetDefaults(existing, addr.ID)...)
	}
	if _, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: tx}); err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}
	return &addr, nil
}

// Update replaces the editable fields of an owned address. The default flag is
// changed only through SetDefault.
func (s *Store) Update(ctx context.Context, addr Address) (*Address, error) {
	current, err := s.get(ctx, addr.OwnerID, addr.ID)
	if err != nil {
		return nil, err
	}
	addr.IsDefault = current.IsDefault
	addr.CreatedAt = current.CreatedAt
	addr.UpdatedAt = s.nowFunc().UTC()
	if addr.AddressType == "" {
		addr.AddressType = current.AddressType
	}

	item, err := attributevalue.MarshalMap(addr)
	if err != nil {
		return nil, fmt.Errorf("marshal address: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: addr.OwnerID},
		},
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update address: %w", err)
	}
	return &addr, nil
}

// Delete removes an owned address. Deleting the default promotes the newest remaining one.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	current, err := s.get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 addressKey(id),
		ConditionExpression: awsString("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrNotFound
		}
		return fmt.Errorf("delete address: %w", err)
	}
	if !current.IsDefault {
		return nil
	}
	rest, err := s.List(ctx, ownerID)
	if err != nil || len(rest) == 0 {
		return err
	}
	return s.SetDefault(ctx, ownerID, rest[0].ID)
}

// SetDefault makes id the owner's only default address. All writes happen in
// one transaction so readers never observe zero or two defaults.
func (s *Store) SetDefault(ctx context.Context, ownerID, id string) error {
	list, err := s.List(ctx, ownerID)
	if err != nil {
		return err
	}
	found := false
	for _, a := range list {
		if a.ID == id {
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}

	tx := s.unsetDefaults(list, id)
	tx = append(tx, types.TransactWriteItem{
		Update: &types.Update{
			TableName:           &s.tableName,
			Key:                 addressKey(id),
			UpdateExpression:    awsString("SET is_default = :t, updated_at = :ua"),
			ConditionExpression: awsString("attribute_exists(id) AND owner_id = :o"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":t":  &types.AttributeValueMemberBOOL{Value: true},
				":o":  &types.AttributeValueMemberS{Value: ownerID},
				":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
			},
		},
	})
	if _, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: tx}); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return fmt.Errorf("set default address: %w", err)
	}
	return nil
}

// unsetDefaults builds updates clearing the flag on every default except keepID.
func (s *Store) unsetDefaults(list []Address, keepID string) []types.TransactWriteItem {
	var tx []types.TransactWriteItem
	for _, a := range list {
		if a.ID == keepID || !a.IsDefault {
			continue
		}
		tx = append(tx, types.TransactWriteItem{
			Update: &types.Update{
				TableName:        &s.tableName,
				Key:              addressKey(a.ID),
				UpdateExpression: awsString("SET is_default = :f, updated_at = :ua"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":f":  &types.AttributeValueMemberBOOL{Value: false},
					":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
				},
			},
		})
	}
	return tx
}

func (s *Store) get(ctx context.Context, ownerID, id string) (*Address, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            addressKey(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var a Address
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	if a.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &a, nil
}

func addressKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
