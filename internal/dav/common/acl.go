package common

import (
	"context"
)

func CurrentUserPrincipalHref(ctx context.Context, basePath string) string {
	u, _ := CurrentUser(ctx)
	if u == nil {
		return JoinURL(basePath, "principals")
	}
	return PrincipalURL(basePath, u.UID)
}
