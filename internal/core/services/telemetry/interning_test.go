package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domain "tinyolly/internal/core/domain/telemetry"
)

func attr(key, value string) domain.Attribute {
	return domain.Attribute{Key: key, Value: domain.AttributeValue{Kind: domain.AttrKindString, Str: value}}
}

func TestHashResource_OrderIndependent(t *testing.T) {
	a := domain.Resource{Attributes: domain.Attributes{attr("service.name", "checkout"), attr("host.name", "h1")}}
	b := domain.Resource{Attributes: domain.Attributes{attr("host.name", "h1"), attr("service.name", "checkout")}}
	assert.Equal(t, hashResource(a), hashResource(b))
}

func TestHashResource_DifferentValuesDiffer(t *testing.T) {
	a := domain.Resource{Attributes: domain.Attributes{attr("service.name", "checkout")}}
	b := domain.Resource{Attributes: domain.Attributes{attr("service.name", "billing")}}
	assert.NotEqual(t, hashResource(a), hashResource(b))
}

func TestHashSeriesFingerprint_StableAcrossOrder(t *testing.T) {
	a := domain.Attributes{attr("method", "GET"), attr("path", "/x")}
	b := domain.Attributes{attr("path", "/x"), attr("method", "GET")}
	assert.Equal(t, hashSeriesFingerprint(a), hashSeriesFingerprint(b))
}
