// Package mocks holds gomock doubles of the weaver's collaborators.
package mocks

//go:generate mockgen -write_package_comment=false -package=mocks -destination=mock_canonicalizer.go github.com/wippyai/autodispose/weaver/internal/rewrite Canonicalizer
//go:generate mockgen -write_package_comment=false -package=mocks -destination=mock_tree_builder.go github.com/wippyai/autodispose/ilast TreeBuilder
