package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/vacuum/pkg/revision"
)

// Task definition statuses accepted by ListTaskDefinitions.
const (
	StatusActive   = string(ecstypes.TaskDefinitionStatusActive)
	StatusInactive = string(ecstypes.TaskDefinitionStatusInactive)
)

// API limits per describe call.
const (
	MaxDescribeTasks    = 100
	MaxDescribeServices = 10
)

// failureMissing is reported by DescribeTasks for tasks that stopped
// after they were listed.
const failureMissing = "MISSING"

// ListTaskDefinitions lists every task definition revision with the given status.
func (p *Plugin) ListTaskDefinitions(ctx context.Context, status string) ([]string, error) {
	var arns []string
	var nextToken *string

	for {
		output, err := p.ecsClient.ListTaskDefinitions(ctx, &ecs.ListTaskDefinitionsInput{
			Status:    ecstypes.TaskDefinitionStatus(status),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("list task definitions: %w", err)
		}
		arns = append(arns, output.TaskDefinitionArns...)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return arns, nil
}

// ListClusters lists every ECS cluster ARN.
func (p *Plugin) ListClusters(ctx context.Context) ([]string, error) {
	var clusterArns []string
	var nextToken *string

	for {
		output, err := p.ecsClient.ListClusters(ctx, &ecs.ListClustersInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("list clusters: %w", err)
		}
		clusterArns = append(clusterArns, output.ClusterArns...)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return clusterArns, nil
}

// ListTasks lists the running tasks of a cluster.
func (p *Plugin) ListTasks(ctx context.Context, cluster string) ([]string, error) {
	var taskArns []string
	var nextToken *string

	for {
		output, err := p.ecsClient.ListTasks(ctx, &ecs.ListTasksInput{
			Cluster:   aws.String(cluster),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("list tasks in %s: %w", cluster, err)
		}
		taskArns = append(taskArns, output.TaskArns...)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return taskArns, nil
}

// ListServices lists the services of a cluster.
func (p *Plugin) ListServices(ctx context.Context, cluster string) ([]string, error) {
	var serviceArns []string
	var nextToken *string

	for {
		output, err := p.ecsClient.ListServices(ctx, &ecs.ListServicesInput{
			Cluster:   aws.String(cluster),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("list services in %s: %w", cluster, err)
		}
		serviceArns = append(serviceArns, output.ServiceArns...)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return serviceArns, nil
}

// DescribeTasks resolves the task definition bound to each task.
// Tasks that could not be described are returned as unresolved consumers;
// tasks that stopped since listing are dropped.
func (p *Plugin) DescribeTasks(ctx context.Context, cluster string, taskArns []string) ([]revision.Reference, []revision.Consumer, error) {
	if len(taskArns) > MaxDescribeTasks {
		return nil, nil, fmt.Errorf("describe tasks: %d tasks exceeds limit of %d", len(taskArns), MaxDescribeTasks)
	}

	output, err := p.ecsClient.DescribeTasks(ctx, &ecs.DescribeTasksInput{
		Cluster: aws.String(cluster),
		Tasks:   taskArns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("describe tasks in %s: %w", cluster, err)
	}

	var refs []revision.Reference
	var unresolved []revision.Consumer

	for _, task := range output.Tasks {
		consumer := revision.Consumer{Kind: revision.KindRunningTask, ARN: aws.ToString(task.TaskArn), Cluster: cluster}
		ref, ok := p.convertReference(consumer, aws.ToString(task.TaskDefinitionArn))
		if !ok {
			unresolved = append(unresolved, consumer)
			continue
		}
		refs = append(refs, ref)
	}

	unresolved = append(unresolved, convertFailures(output.Failures, revision.KindRunningTask, cluster)...)
	return refs, unresolved, nil
}

// DescribeServices resolves every task definition a service currently
// runs: the service's own, plus those of in-flight deployments and task sets.
func (p *Plugin) DescribeServices(ctx context.Context, cluster string, serviceArns []string) ([]revision.Reference, []revision.Consumer, error) {
	if len(serviceArns) > MaxDescribeServices {
		return nil, nil, fmt.Errorf("describe services: %d services exceeds limit of %d", len(serviceArns), MaxDescribeServices)
	}

	output, err := p.ecsClient.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(cluster),
		Services: serviceArns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("describe services in %s: %w", cluster, err)
	}

	var refs []revision.Reference
	var unresolved []revision.Consumer

	for _, svc := range output.Services {
		consumer := revision.Consumer{Kind: revision.KindService, ARN: aws.ToString(svc.ServiceArn), Cluster: cluster}

		bound := serviceTaskDefinitions(svc)
		if len(bound) == 0 {
			unresolved = append(unresolved, consumer)
			continue
		}

		for _, td := range bound {
			ref, ok := p.convertReference(consumer, td)
			if !ok {
				unresolved = append(unresolved, consumer)
				continue
			}
			refs = append(refs, ref)
		}
	}

	unresolved = append(unresolved, convertFailures(output.Failures, revision.KindService, cluster)...)
	return refs, unresolved, nil
}

// DeregisterTaskDefinition moves a revision to INACTIVE.
func (p *Plugin) DeregisterTaskDefinition(ctx context.Context, id revision.Identifier) error {
	_, err := p.ecsClient.DeregisterTaskDefinition(ctx, &ecs.DeregisterTaskDefinitionInput{
		TaskDefinition: aws.String(id.ARN),
	})
	if err != nil {
		return classifyError(fmt.Sprintf("deregister %s", id.ARN), err)
	}
	return nil
}

// DeleteTaskDefinition permanently deletes an INACTIVE revision.
func (p *Plugin) DeleteTaskDefinition(ctx context.Context, id revision.Identifier) error {
	output, err := p.ecsClient.DeleteTaskDefinitions(ctx, &ecs.DeleteTaskDefinitionsInput{
		TaskDefinitions: []string{id.ARN},
	})
	if err != nil {
		return classifyError(fmt.Sprintf("delete %s", id.ARN), err)
	}

	// DeleteTaskDefinitions reports per-item problems in-band.
	for _, f := range output.Failures {
		reason := aws.ToString(f.Reason)
		if isNotFoundMessage(reason) {
			return fmt.Errorf("delete %s: %w: %s", id.ARN, revision.ErrNotFound, reason)
		}
		return fmt.Errorf("delete %s: %s %s", id.ARN, reason, aws.ToString(f.Detail))
	}
	return nil
}

func (p *Plugin) convertReference(consumer revision.Consumer, taskDefinitionArn string) (revision.Reference, bool) {
	if taskDefinitionArn == "" {
		return revision.Reference{}, false
	}

	target, err := revision.Parse(taskDefinitionArn)
	if err != nil {
		log.Warn().Err(err).Str("consumer", consumer.ARN).Msg("unparseable task definition reference")
		return revision.Reference{}, false
	}

	return revision.Reference{Kind: consumer.Kind, Consumer: consumer.ARN, Target: target}, true
}

func serviceTaskDefinitions(svc ecstypes.Service) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(td *string) {
		v := aws.ToString(td)
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	add(svc.TaskDefinition)
	for _, d := range svc.Deployments {
		add(d.TaskDefinition)
	}
	for _, ts := range svc.TaskSets {
		add(ts.TaskDefinition)
	}
	return out
}

func convertFailures(failures []ecstypes.Failure, kind revision.ConsumerKind, cluster string) []revision.Consumer {
	var out []revision.Consumer
	for _, f := range failures {
		if aws.ToString(f.Reason) == failureMissing {
			continue
		}
		log.Warn().
			Str("arn", aws.ToString(f.Arn)).
			Str("reason", aws.ToString(f.Reason)).
			Str("cluster", cluster).
			Msg("consumer could not be described")
		out = append(out, revision.Consumer{Kind: kind, ARN: aws.ToString(f.Arn), Cluster: cluster})
	}
	return out
}
