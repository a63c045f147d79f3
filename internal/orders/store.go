package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/storefront-checkout/internal/aws"
)

// OwnerIndex is the GSI on owner_id used by ListByOwner.
const OwnerIndex = "owner_id-index"

// maxApplyAttempts bounds the read/conditional-write loop in ApplyStatus.
const maxApplyAttempts = 3

var (
	// ErrStatusMismatch is returned by UpdateStatus when the stored status is not the expected one.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrIdempotencyKeyExists means the idempotency record of the transaction already exists.
	ErrIdempotencyKeyExists = errors.New("idempotency key already exists")
	// ErrOrderExists means an order with the same order number is already stored.
	ErrOrderExists = errors.New("order number already exists")
	// ErrNotFound is returned by writes addressed to a missing order.
	ErrNotFound = errors.New("order not found")
	// ErrPaymentStarted means the order already left pending or carries a payment id.
	ErrPaymentStarted = errors.New("order payment already started")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in idempotencyTable (with ConditionExpression attribute_not_exists(idempotency_key))
//   - order record in the orders table (with ConditionExpression attribute_not_exists(order_number))
//
// idempotencyItem must be a serializable struct with attribute idempotency_key present.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order Order, ttlWindow time.Duration) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires)}
	}

	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &idempotencyTable,
					Item:                idempMap,
					ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(order_number)"),
				},
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, input)
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return cancellationError(tce, err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// cancellationError maps the per-item cancellation reasons of the create transaction.
func cancellationError(tce *types.TransactionCanceledException, err error) error {
	for i, r := range tce.CancellationReasons {
		if r.Code == nil || *r.Code != "ConditionalCheckFailed" {
			continue
		}
		if i == 0 {
			return fmt.Errorf("%w: %v", ErrIdempotencyKeyExists, err)
		}
		return fmt.Errorf("%w: %v", ErrOrderExists, err)
	}
	// no reasons reported: the idempotency guard is the likely cause
	return fmt.Errorf("%w: %v", ErrIdempotencyKeyExists, err)
}

// Get fetches an order by order number. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderNumber string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderNumber),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListByOwner returns the owner's orders, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Order, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(OwnerIndex),
		KeyConditionExpression: awsString("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	list := make([]Order, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &list); err != nil {
		return nil, fmt.Errorf("unmarshal orders: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// SetPaymentID stores the external payment reference on an existing order.
func (s *Store) SetPaymentID(ctx context.Context, orderNumber, paymentID string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 orderKey(orderNumber),
		UpdateExpression:    awsString("SET payment_id = :pid, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(order_number)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: paymentID},
			":ua":  &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrNotFound
		}
		return fmt.Errorf("set payment id: %w", err)
	}
	return nil
}

// SetPaymentMethod changes the method of a pending order that has no payment yet.
func (s *Store) SetPaymentMethod(ctx context.Context, orderNumber, method string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderNumber),
		UpdateExpression:         awsString("SET payment_method = :m, updated_at = :ua"),
		ConditionExpression:      awsString("#s = :pending AND attribute_not_exists(payment_id)"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m":       &types.AttributeValueMemberS{Value: method},
			":pending": &types.AttributeValueMemberS{Value: StatusPending},
			":ua":      &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrPaymentStarted
		}
		return fmt.Errorf("set payment method: %w", err)
	}
	return nil
}

// UpdateStatus conditionally updates the order status from expected -> newStatus.
// A non-empty paymentID is written in the same update.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderNumber, expectedStatus, newStatus, paymentID string) error {
	now := s.nowFunc().UTC()
	updateExpr := "SET #s = :new, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: newStatus},
		":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		":expected": &types.AttributeValueMemberS{Value: expectedStatus},
	}
	if paymentID != "" {
		updateExpr += ", payment_id = :pid"
		values[":pid"] = &types.AttributeValueMemberS{Value: paymentID}
	}
	input := &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderNumber),
		UpdateExpression:          &updateExpr,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString("#s = :expected"),
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ApplyStatus moves the order to next when CanTransition allows it, using the
// observed status as the write condition. Concurrent writers cause a re-read;
// a move that has become backwards is skipped. changed reports whether this call wrote.
func (s *Store) ApplyStatus(ctx context.Context, orderNumber, next, paymentID string) (order *Order, changed bool, err error) {
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		order, err = s.Get(ctx, orderNumber)
		if err != nil {
			return nil, false, err
		}
		if order == nil {
			return nil, false, ErrNotFound
		}
		if !CanTransition(order.Status, next) {
			return order, false, nil
		}
		err = s.UpdateStatus(ctx, orderNumber, order.Status, next, paymentID)
		if errors.Is(err, ErrStatusMismatch) {
			continue
		}
		if err != nil {
			return order, false, err
		}
		order.Status = next
		if paymentID != "" {
			order.PaymentID = paymentID
		}
		return order, true, nil
	}
	return order, false, fmt.Errorf("apply status %s to %s: %w", next, orderNumber, ErrStatusMismatch)
}

func orderKey(orderNumber string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_number": &types.AttributeValueMemberS{Value: orderNumber},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
