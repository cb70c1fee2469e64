package abac

import "errors"

// ErrMissingTenant is returned by New when a non-superuser subject has no
// resolvable tenant. The engine fails closed: no instance may exist in an
// ambiguous-tenant state, so no check can silently default to allow or deny.
var ErrMissingTenant = errors.New("abac: tenant context is required for non-superuser subjects")

// ErrUnknownOperator is reported by policy validation for an operator outside
// the closed comparison set.
var ErrUnknownOperator = errors.New("abac: unknown rule operator")

// ErrInvalidEffect is reported by policy validation for an effect other than
// ALLOW or DENY.
var ErrInvalidEffect = errors.New("abac: policy effect must be ALLOW or DENY")
