package middleware

import "context"

// identityHolder は内側の認証ミドルウェアが解決したIDをロギングへ渡すための入れ物。
type identityHolder struct {
	userID   string
	deviceID string
}

var identityHolderKey = contextKey("identity_holder")

func contextWithIdentityHolder(ctx context.Context, h *identityHolder) context.Context {
	return context.WithValue(ctx, identityHolderKey, h)
}

func identityHolderFrom(ctx context.Context) *identityHolder {
	h, _ := ctx.Value(identityHolderKey).(*identityHolder)
	return h
}
