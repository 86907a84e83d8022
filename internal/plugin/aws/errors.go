package aws

import (
	"errors"
	"fmt"
	"strings"

	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"

	"github.com/yairfalse/vacuum/pkg/revision"
)

// ECS reports a missing or already deregistered revision as a generic
// ClientException; only the message tells them apart.
var notFoundMessages = []string{
	"does not exist",
	"not found",
	"unable to describe task definition",
	"is inactive",
	"already inactive",
	"task_definition_not_found",
}

// classifyError wraps provider errors that mean "already gone" with
// revision.ErrNotFound so the executor can treat them as success.
func classifyError(op string, err error) error {
	var notFound *lambdatypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w: %w", op, revision.ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ResourceNotFoundException":
			return fmt.Errorf("%s: %w: %w", op, revision.ErrNotFound, err)
		case "ClientException", "InvalidParameterException":
			if isNotFoundMessage(apiErr.ErrorMessage()) {
				return fmt.Errorf("%s: %w: %w", op, revision.ErrNotFound, err)
			}
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

func isNotFoundMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range notFoundMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
