package rbac

import "context"

type subKey struct{}
type nameKey struct{}
type roleKey struct{}

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subKey{}, sub)
}

func SubjectFromContext(ctx context.Context) string {
	return str(ctx, subKey{})
}

func WithName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, nameKey{}, name)
}

func NameFromContext(ctx context.Context) string {
	return str(ctx, nameKey{})
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	return str(ctx, roleKey{})
}

func str(ctx context.Context, k any) string {
	if v := ctx.Value(k); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
