package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/standardsja/pms-sub000/internal/platform/errors"
	"github.com/standardsja/pms-sub000/internal/platform/requestctx"
	"github.com/standardsja/pms-sub000/internal/services/review/domain"
)

// accessClaims mirrors the identity provider's access token payload.
type accessClaims struct {
	Roles []string `json:"roles"`
	// StructureSections lists sections the token holder may reshape this
	// request. The drafting owner mints these short-lived grants.
	StructureSections []string `json:"structure_sections"`
	jwt.RegisteredClaims
}

type structureSectionsKey struct{}

func withStructureSections(ctx context.Context, sections []domain.SectionID) context.Context {
	if len(sections) == 0 {
		return ctx
	}
	return context.WithValue(ctx, structureSectionsKey{}, sections)
}

func structureSectionsFromContext(ctx context.Context) []domain.SectionID {
	sections, _ := ctx.Value(structureSectionsKey{}).([]domain.SectionID)
	return sections
}

// requireAuth wraps next with bearer token authentication. The resolved user
// id, roles, and structure grants travel on the request context.
func requireAuth(next http.Handler, secret []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, apperrors.New(apperrors.CodeUnauthenticated, "missing bearer token"))
			return
		}

		claims := &accessClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
			writeError(w, apperrors.New(apperrors.CodeUnauthenticated, "invalid bearer token"))
			return
		}

		ctx := requestctx.WithUserID(r.Context(), claims.Subject)
		ctx = requestctx.WithRoles(ctx, claims.Roles)

		var grants []domain.SectionID
		for _, value := range claims.StructureSections {
			section, err := domain.ParseSectionID(value)
			if err != nil {
				continue
			}
			grants = append(grants, section)
		}
		ctx = withStructureSections(ctx, grants)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// actorFromContext rebuilds the caller identity placed by requireAuth.
func actorFromContext(ctx context.Context) (domain.Actor, error) {
	userID := requestctx.UserIDFromContext(ctx)
	if strings.TrimSpace(userID) == "" {
		return domain.Actor{}, apperrors.New(apperrors.CodeUnauthenticated, "caller identity is missing")
	}
	return domain.Actor{
		UserID:            userID,
		Drafting:          requestctx.HasRole(ctx, domain.RoleDrafting),
		Committee:         requestctx.HasRole(ctx, domain.RoleCommittee),
		StructureSections: structureSectionsFromContext(ctx),
	}, nil
}
