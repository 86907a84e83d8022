package aws

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/yairfalse/vacuum/pkg/revision"
)

// ListFunctions lists the unqualified ARN of every function.
func (p *Plugin) ListFunctions(ctx context.Context) ([]string, error) {
	var functionArns []string
	var marker *string

	for {
		output, err := p.lambdaClient.ListFunctions(ctx, &lambda.ListFunctionsInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("list functions: %w", err)
		}

		for _, fn := range output.Functions {
			// Some responses qualify the ARN with the latest marker.
			functionArns = append(functionArns, strings.TrimSuffix(aws.ToString(fn.FunctionArn), ":"+revision.LatestMarker))
		}

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}

	return functionArns, nil
}

// ListFunctionVersions lists every published version of a function,
// including the latest marker.
func (p *Plugin) ListFunctionVersions(ctx context.Context, functionArn string) ([]revision.Identifier, error) {
	var ids []revision.Identifier
	var marker *string

	for {
		output, err := p.lambdaClient.ListVersionsByFunction(ctx, &lambda.ListVersionsByFunctionInput{
			FunctionName: aws.String(functionArn),
			Marker:       marker,
		})
		if err != nil {
			return nil, fmt.Errorf("list versions of %s: %w", functionArn, err)
		}

		for _, v := range output.Versions {
			ids = append(ids, revision.New(functionArn, aws.ToString(v.Version)))
		}

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}

	return ids, nil
}

// ListAliasReferences resolves the versions pinned by a function's aliases,
// including versions receiving weighted traffic.
func (p *Plugin) ListAliasReferences(ctx context.Context, functionArn string) ([]revision.Reference, error) {
	var refs []revision.Reference
	var marker *string

	for {
		output, err := p.lambdaClient.ListAliases(ctx, &lambda.ListAliasesInput{
			FunctionName: aws.String(functionArn),
			Marker:       marker,
		})
		if err != nil {
			return nil, fmt.Errorf("list aliases of %s: %w", functionArn, err)
		}

		for _, alias := range output.Aliases {
			refs = append(refs, convertAlias(functionArn, alias)...)
		}

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}

	return refs, nil
}

// DeleteFunctionVersion deletes one published version. It refuses
// anything that is not a numeric version, since an empty qualifier
// would delete the whole function.
func (p *Plugin) DeleteFunctionVersion(ctx context.Context, id revision.Identifier) error {
	if !id.Numeric {
		return fmt.Errorf("delete %s: refusing to delete non-numeric version %q", id.ARN, id.Version)
	}

	_, err := p.lambdaClient.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
		FunctionName: aws.String(id.Family),
		Qualifier:    aws.String(id.Version),
	})
	if err != nil {
		return classifyError(fmt.Sprintf("delete %s", id.ARN), err)
	}
	return nil
}

func convertAlias(functionArn string, alias lambdatypes.AliasConfiguration) []revision.Reference {
	consumer := aws.ToString(alias.AliasArn)
	refs := []revision.Reference{{
		Kind:     revision.KindAlias,
		Consumer: consumer,
		Target:   revision.New(functionArn, aws.ToString(alias.FunctionVersion)),
	}}

	if alias.RoutingConfig == nil {
		return refs
	}

	weighted := make([]string, 0, len(alias.RoutingConfig.AdditionalVersionWeights))
	for v := range alias.RoutingConfig.AdditionalVersionWeights {
		weighted = append(weighted, v)
	}
	sort.Strings(weighted)

	for _, v := range weighted {
		refs = append(refs, revision.Reference{
			Kind:     revision.KindAlias,
			Consumer: consumer,
			Target:   revision.New(functionArn, v),
		})
	}
	return refs
}
