// Package awstest provides in-memory fakes of the AWS client interfaces for unit tests.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Dynamo is a small in-memory DynamoDB supporting the expression shapes our stores emit:
// SET-only update expressions, AND-joined conditions of attribute_exists,
// attribute_not_exists, = and <>, and single-attribute key conditions on Query.
// NOTE: not production-grade, only enough for store tests.
type Dynamo struct {
	mu     sync.Mutex
	keys   map[string]string // table -> partition key attribute
	Tables map[string]map[string]map[string]types.AttributeValue

	// Err, when set for an operation name ("PutItem", "Query", ...), is returned instead of executing it.
	Err map[string]error

	Calls map[string]int
}

// NewDynamo creates a fake; keys maps table name to its partition key attribute.
func NewDynamo(keys map[string]string) *Dynamo {
	d := &Dynamo{
		keys:   keys,
		Tables: map[string]map[string]map[string]types.AttributeValue{},
		Err:    map[string]error{},
		Calls:  map[string]int{},
	}
	for t := range keys {
		d.Tables[t] = map[string]map[string]types.AttributeValue{}
	}
	return d
}

// Item returns a copy of the stored item or nil.
func (d *Dynamo) Item(table, pk string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.Tables[table][pk]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Count returns the number of items in table.
func (d *Dynamo) Count(table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Tables[table])
}

func (d *Dynamo) begin(op string) error {
	d.Calls[op]++
	if err, ok := d.Err[op]; ok && err != nil {
		return err
	}
	return nil
}

func (d *Dynamo) table(name string) (map[string]map[string]types.AttributeValue, string, error) {
	keyAttr, ok := d.keys[name]
	if !ok {
		return nil, "", fmt.Errorf("awstest: unknown table %q", name)
	}
	return d.Tables[name], keyAttr, nil
}

func pkOf(item map[string]types.AttributeValue, keyAttr string) (string, error) {
	v, ok := item[keyAttr].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("awstest: missing string key %q", keyAttr)
	}
	return v.Value, nil
}

func (d *Dynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("PutItem"); err != nil {
		return nil, err
	}
	if err := d.applyPut(*in.TableName, in.Item, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, true); err != nil {
		return nil, err
	}
	return &dyn.PutItemOutput{}, nil
}

func (d *Dynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("GetItem"); err != nil {
		return nil, err
	}
	tbl, keyAttr, err := d.table(*in.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := pkOf(in.Key, keyAttr)
	if err != nil {
		return nil, err
	}
	item, ok := tbl[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (d *Dynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("UpdateItem"); err != nil {
		return nil, err
	}
	item, err := d.applyUpdate(*in.TableName, in.Key, in.UpdateExpression, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, true)
	if err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (d *Dynamo) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("DeleteItem"); err != nil {
		return nil, err
	}
	if err := d.applyDelete(*in.TableName, in.Key, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, true); err != nil {
		return nil, err
	}
	return &dyn.DeleteItemOutput{}, nil
}

func (d *Dynamo) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("Query"); err != nil {
		return nil, err
	}
	tbl, _, err := d.table(*in.TableName)
	if err != nil {
		return nil, err
	}
	if in.KeyConditionExpression == nil {
		return nil, errors.New("awstest: query without key condition")
	}
	out := &dyn.QueryOutput{}
	for _, item := range tbl {
		ok, err := evalCondition(*in.KeyConditionExpression, item, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Items = append(out.Items, copyItem(item))
		}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func (d *Dynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("TransactWriteItems"); err != nil {
		return nil, err
	}

	// first pass: conditions only
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, it := range in.TransactItems {
		var (
			table, cond string
			key         map[string]types.AttributeValue
			names       map[string]string
			values      map[string]types.AttributeValue
		)
		switch {
		case it.Put != nil:
			table, names, values = *it.Put.TableName, it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
			cond = deref(it.Put.ConditionExpression)
			_, keyAttr, err := d.table(table)
			if err != nil {
				return nil, err
			}
			key = map[string]types.AttributeValue{keyAttr: it.Put.Item[keyAttr]}
		case it.Update != nil:
			table, key, names, values = *it.Update.TableName, it.Update.Key, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
			cond = deref(it.Update.ConditionExpression)
		case it.Delete != nil:
			table, key, names, values = *it.Delete.TableName, it.Delete.Key, it.Delete.ExpressionAttributeNames, it.Delete.ExpressionAttributeValues
			cond = deref(it.Delete.ConditionExpression)
		case it.ConditionCheck != nil:
			table, key, names, values = *it.ConditionCheck.TableName, it.ConditionCheck.Key, it.ConditionCheck.ExpressionAttributeNames, it.ConditionCheck.ExpressionAttributeValues
			cond = deref(it.ConditionCheck.ConditionExpression)
		}
		reasons[i] = types.CancellationReason{Code: awsString("None")}
		if cond == "" {
			continue
		}
		ok, err := d.check(table, key, cond, names, values)
		if err != nil {
			return nil, err
		}
		if !ok {
			failed = true
			reasons[i] = types.CancellationReason{Code: awsString("ConditionalCheckFailed")}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             awsString("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	// second pass: apply
	for _, it := range in.TransactItems {
		switch {
		case it.Put != nil:
			if err := d.applyPut(*it.Put.TableName, it.Put.Item, nil, nil, nil, false); err != nil {
				return nil, err
			}
		case it.Update != nil:
			if _, err := d.applyUpdate(*it.Update.TableName, it.Update.Key, it.Update.UpdateExpression, nil, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues, false); err != nil {
				return nil, err
			}
		case it.Delete != nil:
			if err := d.applyDelete(*it.Delete.TableName, it.Delete.Key, nil, nil, nil, false); err != nil {
				return nil, err
			}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (d *Dynamo) check(table string, key map[string]types.AttributeValue, cond string, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	tbl, keyAttr, err := d.table(table)
	if err != nil {
		return false, err
	}
	pk, err := pkOf(key, keyAttr)
	if err != nil {
		return false, err
	}
	current := tbl[pk] // nil when absent
	return evalCondition(cond, current, names, values)
}

func (d *Dynamo) applyPut(table string, item map[string]types.AttributeValue, cond *string, names map[string]string, values map[string]types.AttributeValue, checkCond bool) error {
	tbl, keyAttr, err := d.table(table)
	if err != nil {
		return err
	}
	pk, err := pkOf(item, keyAttr)
	if err != nil {
		return err
	}
	if checkCond && cond != nil {
		ok, err := evalCondition(*cond, tbl[pk], names, values)
		if err != nil {
			return err
		}
		if !ok {
			return &types.ConditionalCheckFailedException{Message: awsString("The conditional request failed")}
		}
	}
	tbl[pk] = copyItem(item)
	return nil
}

func (d *Dynamo) applyUpdate(table string, key map[string]types.AttributeValue, updateExpr, cond *string, names map[string]string, values map[string]types.AttributeValue, checkCond bool) (map[string]types.AttributeValue, error) {
	tbl, keyAttr, err := d.table(table)
	if err != nil {
		return nil, err
	}
	pk, err := pkOf(key, keyAttr)
	if err != nil {
		return nil, err
	}
	current := tbl[pk]
	if checkCond && cond != nil {
		ok, err := evalCondition(*cond, current, names, values)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: awsString("The conditional request failed")}
		}
	}
	item := copyItem(current)
	if item == nil {
		item = copyItem(key)
	}
	if updateExpr != nil {
		expr := strings.TrimSpace(*updateExpr)
		if !strings.HasPrefix(expr, "SET ") {
			return nil, fmt.Errorf("awstest: unsupported update expression %q", expr)
		}
		for _, assign := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
			parts := strings.SplitN(assign, "=", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("awstest: bad assignment %q", assign)
			}
			attr := resolveName(strings.TrimSpace(parts[0]), names)
			ref := strings.TrimSpace(parts[1])
			v, ok := values[ref]
			if !ok {
				return nil, fmt.Errorf("awstest: missing value %s", ref)
			}
			item[attr] = v
		}
	}
	tbl[pk] = item
	return item, nil
}

func (d *Dynamo) applyDelete(table string, key map[string]types.AttributeValue, cond *string, names map[string]string, values map[string]types.AttributeValue, checkCond bool) error {
	tbl, keyAttr, err := d.table(table)
	if err != nil {
		return err
	}
	pk, err := pkOf(key, keyAttr)
	if err != nil {
		return err
	}
	if checkCond && cond != nil {
		ok, err := evalCondition(*cond, tbl[pk], names, values)
		if err != nil {
			return err
		}
		if !ok {
			return &types.ConditionalCheckFailedException{Message: awsString("The conditional request failed")}
		}
	}
	delete(tbl, pk)
	return nil
}

func evalCondition(cond string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, term := range strings.Split(cond, " AND ") {
		term = strings.TrimSpace(term)
		var ok bool
		switch {
		case strings.HasPrefix(term, "attribute_not_exists(") && strings.HasSuffix(term, ")"):
			attr := resolveName(term[len("attribute_not_exists("):len(term)-1], names)
			_, exists := item[attr]
			ok = !exists
		case strings.HasPrefix(term, "attribute_exists(") && strings.HasSuffix(term, ")"):
			attr := resolveName(term[len("attribute_exists("):len(term)-1], names)
			_, ok = item[attr]
		case strings.Contains(term, "<>"):
			parts := strings.SplitN(term, "<>", 2)
			attr := resolveName(strings.TrimSpace(parts[0]), names)
			want, found := values[strings.TrimSpace(parts[1])]
			if !found {
				return false, fmt.Errorf("awstest: missing value in %q", term)
			}
			ok = !reflect.DeepEqual(item[attr], want)
		case strings.Contains(term, "="):
			parts := strings.SplitN(term, "=", 2)
			attr := resolveName(strings.TrimSpace(parts[0]), names)
			want, found := values[strings.TrimSpace(parts[1])]
			if !found {
				return false, fmt.Errorf("awstest: missing value in %q", term)
			}
			got, exists := item[attr]
			ok = exists && reflect.DeepEqual(got, want)
		default:
			return false, fmt.Errorf("awstest: unsupported condition %q", term)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func resolveName(attr string, names map[string]string) string {
	if strings.HasPrefix(attr, "#") {
		if n, ok := names[attr]; ok {
			return n
		}
	}
	return attr
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func awsString(s string) *string { return &s }
