package schema

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTableInput_UsersTable(t *testing.T) {
	in := CreateTableInput(UsersTable("alex-users-data", DefaultIndexNames()))

	assert.Equal(t, "alex-users-data", aws.ToString(in.TableName))
	assert.Equal(t, types.BillingModePayPerRequest, in.BillingMode)
	require.Len(t, in.GlobalSecondaryIndexes, 1)
	require.Len(t, in.LocalSecondaryIndexes, 1)
	assert.Equal(t, "GSI2", aws.ToString(in.GlobalSecondaryIndexes[0].IndexName))
	assert.Equal(t, "LSI1", aws.ToString(in.LocalSecondaryIndexes[0].IndexName))

	// LSI must share the table's hash key
	assert.Equal(t, AttrPK, aws.ToString(in.LocalSecondaryIndexes[0].KeySchema[0].AttributeName))

	var attrs []string
	for _, def := range in.AttributeDefinitions {
		attrs = append(attrs, aws.ToString(def.AttributeName))
	}
	assert.ElementsMatch(t, []string{AttrPK, AttrSK, AttrGSI2PK, AttrGSI2SK, AttrLSI1SK}, attrs)
}

func TestCreateTableInput_InstrumentsTable(t *testing.T) {
	in := CreateTableInput(InstrumentsTable("alex-instruments"))

	assert.Empty(t, in.GlobalSecondaryIndexes)
	assert.Empty(t, in.LocalSecondaryIndexes)
	require.Len(t, in.KeySchema, 2)
	assert.Equal(t, AttrSymbol, aws.ToString(in.KeySchema[0].AttributeName))
	assert.Equal(t, types.KeyTypeHash, in.KeySchema[0].KeyType)
	assert.Equal(t, AttrSK, aws.ToString(in.KeySchema[1].AttributeName))
}
