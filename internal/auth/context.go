package auth

import (
	"context"

	"ProofChain/internal/proofs"
)

// callerKey 是上下文中存储调用方身份的键类型。
type callerKey struct{}

// WithCaller 将经过验证的调用方身份存入上下文。
func WithCaller(ctx context.Context, caller proofs.Identity) context.Context {
	if caller == proofs.ZeroIdentity {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext 从上下文中提取调用方身份。
func CallerFromContext(ctx context.Context) (proofs.Identity, bool) {
	if ctx == nil {
		return proofs.ZeroIdentity, false
	}
	caller, ok := ctx.Value(callerKey{}).(proofs.Identity)
	return caller, ok
}

// RequireCaller 返回上下文中的调用方，缺失时返回 ErrMissingIdentity。
func RequireCaller(ctx context.Context) (proofs.Identity, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return proofs.ZeroIdentity, ErrMissingIdentity
	}
	return caller, nil
}
