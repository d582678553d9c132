// Package schema declares the physical layout of the planner tables: key
// attribute names, secondary indexes and the CreateTable requests used to
// provision local tables.
package schema

import (
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
)

// Attribute names of the users-data table.
const (
	AttrPK     = "PK"
	AttrSK     = "SK"
	AttrGSI2PK = "GSI2PK"
	AttrGSI2SK = "GSI2SK"
	AttrLSI1SK = "LSI1SK"
)

// Attribute names of the instruments table.
const (
	AttrSymbol = "symbol"
)

// Default index names.
const (
	DefaultGSI2 = "GSI2"
	DefaultLSI1 = "LSI1"
)

// IndexNames allows deployments to rename the secondary indexes.
type IndexNames struct {
	GSI2 string
	LSI1 string
}

// DefaultIndexNames returns GSI2 and LSI1.
func DefaultIndexNames() IndexNames {
	return IndexNames{GSI2: DefaultGSI2, LSI1: DefaultLSI1}
}

// UsersTable describes the users-data table: users, accounts, positions and
// jobs. Accounts and jobs are resolved by id through base-table records, GSI2
// groups jobs by status and LSI1 orders an account's position history by
// time.
func UsersTable(name string, idx IndexNames) abstractions.TableSchema {
	return abstractions.TableSchema{
		Name:         name,
		PartitionKey: AttrPK,
		SortKey:      AttrSK,
		Indexes: map[string]abstractions.IndexSchema{
			idx.GSI2: {PartitionKey: AttrGSI2PK, SortKey: AttrGSI2SK},
			idx.LSI1: {PartitionKey: AttrPK, SortKey: AttrLSI1SK, Local: true},
		},
	}
}

// InstrumentsTable describes the instruments table: instrument metadata and
// price history, partitioned by symbol.
func InstrumentsTable(name string) abstractions.TableSchema {
	return abstractions.TableSchema{
		Name:         name,
		PartitionKey: AttrSymbol,
		SortKey:      AttrSK,
	}
}

// CreateTableInput builds an on-demand CreateTable request for the schema.
func CreateTableInput(s abstractions.TableSchema) *dynamodb.CreateTableInput {
	attrs := map[string]struct{}{s.PartitionKey: {}, s.SortKey: {}}

	names := make([]string, 0, len(s.Indexes))
	for name := range s.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)

	var gsis []types.GlobalSecondaryIndex
	var lsis []types.LocalSecondaryIndex
	for _, name := range names {
		idx := s.Indexes[name]
		attrs[idx.PartitionKey] = struct{}{}
		attrs[idx.SortKey] = struct{}{}

		if idx.Local {
			lsis = append(lsis, types.LocalSecondaryIndex{
				IndexName:  aws.String(name),
				KeySchema:  keySchema(idx.PartitionKey, idx.SortKey),
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			})
			continue
		}
		gsis = append(gsis, types.GlobalSecondaryIndex{
			IndexName:  aws.String(name),
			KeySchema:  keySchema(idx.PartitionKey, idx.SortKey),
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}

	attrNames := make([]string, 0, len(attrs))
	for name := range attrs {
		attrNames = append(attrNames, name)
	}
	sort.Strings(attrNames)

	definitions := make([]types.AttributeDefinition, 0, len(attrNames))
	for _, name := range attrNames {
		definitions = append(definitions, types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: types.ScalarAttributeTypeS,
		})
	}

	return &dynamodb.CreateTableInput{
		TableName:              aws.String(s.Name),
		AttributeDefinitions:   definitions,
		KeySchema:              keySchema(s.PartitionKey, s.SortKey),
		GlobalSecondaryIndexes: gsis,
		LocalSecondaryIndexes:  lsis,
		BillingMode:            types.BillingModePayPerRequest,
	}
}

func keySchema(pk, sk string) []types.KeySchemaElement {
	return []types.KeySchemaElement{
		{AttributeName: aws.String(pk), KeyType: types.KeyTypeHash},
		{AttributeName: aws.String(sk), KeyType: types.KeyTypeRange},
	}
}
