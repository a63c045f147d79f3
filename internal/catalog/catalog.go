// Package catalog reads products from the DynamoDB products table.
package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/storefront-checkout/internal/aws"
)

// Product is a catalog entry. Dimensions are optional; zero means unknown.
type Product struct {
	ID     string   `dynamodbav:"id" json:"id"`
	Name   string   `dynamodbav:"name" json:"name"`
	Slug   string   `dynamodbav:"slug" json:"slug"`
	Price  float64  `dynamodbav:"price" json:"price"`
	Stock  int      `dynamodbav:"stock" json:"stock"`
	Images []string `dynamodbav:"images,omitempty" json:"images,omitempty"`
	Weight float64  `dynamodbav:"weight,omitempty" json:"weight,omitempty"` // kg
	Width  float64  `dynamodbav:"width,omitempty" json:"width,omitempty"`   // cm
	Height float64  `dynamodbav:"height,omitempty" json:"height,omitempty"` // cm
	Length float64  `dynamodbav:"length,omitempty" json:"length,omitempty"` // cm
}

// Store reads products.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a products Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get returns the product or (nil, nil) if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// GetMany returns the products found for ids keyed by id; unknown ids are absent.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]Product, error) {
	found := make(map[string]Product, len(ids))
	for _, id := range ids {
		if _, ok := found[id]; ok {
			continue
		}
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			found[id] = *p
		}
	}
	return found, nil
}
