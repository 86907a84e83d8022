package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vacuum/pkg/revision"
)

const apiFn = "arn:aws:lambda:us-west-2:123456789012:function:api"

// ══════════════════════════════════════════════════════════════════════════════
// Lambda mock
// ══════════════════════════════════════════════════════════════════════════════

type mockLambdaClient struct {
	ListFunctionsFunc          func(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
	ListVersionsByFunctionFunc func(ctx context.Context, params *lambda.ListVersionsByFunctionInput, optFns ...func(*lambda.Options)) (*lambda.ListVersionsByFunctionOutput, error)
	ListAliasesFunc            func(ctx context.Context, params *lambda.ListAliasesInput, optFns ...func(*lambda.Options)) (*lambda.ListAliasesOutput, error)
	DeleteFunctionFunc         func(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
}

func (m *mockLambdaClient) ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
	return m.ListFunctionsFunc(ctx, params, optFns...)
}

func (m *mockLambdaClient) ListVersionsByFunction(ctx context.Context, params *lambda.ListVersionsByFunctionInput, optFns ...func(*lambda.Options)) (*lambda.ListVersionsByFunctionOutput, error) {
	return m.ListVersionsByFunctionFunc(ctx, params, optFns...)
}

func (m *mockLambdaClient) ListAliases(ctx context.Context, params *lambda.ListAliasesInput, optFns ...func(*lambda.Options)) (*lambda.ListAliasesOutput, error) {
	return m.ListAliasesFunc(ctx, params, optFns...)
}

func (m *mockLambdaClient) DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
	return m.DeleteFunctionFunc(ctx, params, optFns...)
}

func TestListFunctions_Paginates(t *testing.T) {
	mock := &mockLambdaClient{
		ListFunctionsFunc: func(_ context.Context, params *lambda.ListFunctionsInput, _ ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
			if params.Marker == nil {
				return &lambda.ListFunctionsOutput{
					Functions:  []lambdatypes.FunctionConfiguration{{FunctionArn: aws.String(apiFn)}},
					NextMarker: aws.String("m2"),
				}, nil
			}
			return &lambda.ListFunctionsOutput{
				Functions: []lambdatypes.FunctionConfiguration{{FunctionArn: aws.String(apiFn + "-worker:$LATEST")}},
			}, nil
		},
	}

	p := NewWithClients("us-west-2", nil, mock)
	fns, err := p.ListFunctions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{apiFn, apiFn + "-worker"}, fns)
}

func TestListFunctionVersions(t *testing.T) {
	mock := &mockLambdaClient{
		ListVersionsByFunctionFunc: func(_ context.Context, params *lambda.ListVersionsByFunctionInput, _ ...func(*lambda.Options)) (*lambda.ListVersionsByFunctionOutput, error) {
			assert.Equal(t, apiFn, aws.ToString(params.FunctionName))
			if params.Marker == nil {
				return &lambda.ListVersionsByFunctionOutput{
					Versions: []lambdatypes.FunctionConfiguration{
						{Version: aws.String("$LATEST")},
						{Version: aws.String("1")},
					},
					NextMarker: aws.String("next"),
				}, nil
			}
			return &lambda.ListVersionsByFunctionOutput{
				Versions: []lambdatypes.FunctionConfiguration{{Version: aws.String("2")}},
			}, nil
		},
	}

	p := NewWithClients("us-west-2", nil, mock)
	ids, err := p.ListFunctionVersions(context.Background(), apiFn)

	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.True(t, ids[0].IsLatest())
	assert.Equal(t, apiFn+":1", ids[1].ARN)
	assert.Equal(t, apiFn, ids[2].Family)
	assert.Equal(t, "api", ids[2].Name)
}

func TestListAliasReferences_IncludesWeightedVersions(t *testing.T) {
	mock := &mockLambdaClient{
		ListAliasesFunc: func(_ context.Context, _ *lambda.ListAliasesInput, _ ...func(*lambda.Options)) (*lambda.ListAliasesOutput, error) {
			return &lambda.ListAliasesOutput{
				Aliases: []lambdatypes.AliasConfiguration{
					{
						AliasArn:        aws.String(apiFn + ":live"),
						FunctionVersion: aws.String("5"),
						RoutingConfig: &lambdatypes.AliasRoutingConfiguration{
							AdditionalVersionWeights: map[string]float64{"4": 0.1},
						},
					},
					{
						AliasArn:        aws.String(apiFn + ":dev"),
						FunctionVersion: aws.String("$LATEST"),
					},
				},
			}, nil
		},
	}

	p := NewWithClients("us-west-2", nil, mock)
	refs, err := p.ListAliasReferences(context.Background(), apiFn)

	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, "5", refs[0].Target.Version)
	assert.Equal(t, "4", refs[1].Target.Version)
	assert.Equal(t, apiFn+":live", refs[1].Consumer)
	assert.True(t, refs[2].Target.IsLatest())

	set := revision.NewReferenceSet(refs, nil)
	assert.Equal(t, 2, set.Len(), "latest marker is not a numeric reference")
}

func TestDeleteFunctionVersion(t *testing.T) {
	var input *lambda.DeleteFunctionInput
	mock := &mockLambdaClient{
		DeleteFunctionFunc: func(_ context.Context, params *lambda.DeleteFunctionInput, _ ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
			input = params
			return &lambda.DeleteFunctionOutput{}, nil
		},
	}

	p := NewWithClients("us-west-2", nil, mock)
	err := p.DeleteFunctionVersion(context.Background(), revision.New(apiFn, "3"))

	require.NoError(t, err)
	assert.Equal(t, apiFn, aws.ToString(input.FunctionName))
	assert.Equal(t, "3", aws.ToString(input.Qualifier))
}

func TestDeleteFunctionVersion_RefusesNonNumeric(t *testing.T) {
	mock := &mockLambdaClient{
		DeleteFunctionFunc: func(_ context.Context, _ *lambda.DeleteFunctionInput, _ ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
			t.Fatal("DeleteFunction must not be called")
			return nil, nil
		},
	}

	p := NewWithClients("us-west-2", nil, mock)

	assert.Error(t, p.DeleteFunctionVersion(context.Background(), revision.New(apiFn, "$LATEST")))
	assert.Error(t, p.DeleteFunctionVersion(context.Background(), revision.New(apiFn, "")))
}

func TestDeleteFunctionVersion_NotFound(t *testing.T) {
	mock := &mockLambdaClient{
		DeleteFunctionFunc: func(_ context.Context, _ *lambda.DeleteFunctionInput, _ ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
			return nil, &lambdatypes.ResourceNotFoundException{Message: aws.String("Function not found")}
		},
	}

	p := NewWithClients("us-west-2", nil, mock)
	err := p.DeleteFunctionVersion(context.Background(), revision.New(apiFn, "3"))

	assert.ErrorIs(t, err, revision.ErrNotFound)
}
