package rag

import (
	"github.com/lkirch/sciencesage/rag/interfaces"
	"github.com/lkirch/sciencesage/rag/types"
)

// Embedder is an alias for interfaces.Embedder
type Embedder = interfaces.Embedder

// Index is an alias for interfaces.Index
type Index = interfaces.Index

// Completer is an alias for interfaces.Completer
type Completer = interfaces.Completer

// SearchFilter is an alias for interfaces.SearchFilter
type SearchFilter = interfaces.SearchFilter

// Response is an alias for types.Response
type Response = types.Response
