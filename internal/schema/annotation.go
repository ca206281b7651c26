package schema

// AnnotationKind tags the variant of an annotation. Each operation holds at
// most one annotation per kind.
type AnnotationKind string

const (
	// KindAuthentication marks an operation as requiring an authenticated
	// caller before resolution.
	KindAuthentication AnnotationKind = "authentication"
	// KindAuthorization attaches claim-based filter rules to an operation.
	KindAuthorization AnnotationKind = "authorization"
	// KindJWTClaim projects a token claim into a schema field.
	KindJWTClaim AnnotationKind = "jwt_claim"
	// KindSubscription opts an operation into subscription delivery.
	KindSubscription AnnotationKind = "subscription"
)

// Annotation is a tagged variant over the known annotation kinds.
type Annotation interface {
	Kind() AnnotationKind
}

// AuthenticationAnnotation requires the caller to be authenticated.
type AuthenticationAnnotation struct {
	// Optional restricts the requirement to listed attributes; empty means
	// the whole operation.
	Optional []string
}

func (AuthenticationAnnotation) Kind() AnnotationKind { return KindAuthentication }

// AuthorizationAnnotation carries claim-to-column filter rules applied
// during query generation.
type AuthorizationAnnotation struct {
	// Filters maps a claim name to the column it must match.
	Filters map[string]string
}

func (AuthorizationAnnotation) Kind() AnnotationKind { return KindAuthorization }

// JWTClaimAnnotation maps a token claim onto a schema field.
type JWTClaimAnnotation struct {
	Claim string
	Field string
}

func (JWTClaimAnnotation) Kind() AnnotationKind { return KindJWTClaim }

// SubscriptionAnnotation opts the operation into subscription delivery.
type SubscriptionAnnotation struct {
	Events []string
}

func (SubscriptionAnnotation) Kind() AnnotationKind { return KindSubscription }
