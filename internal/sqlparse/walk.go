package sqlparse

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Walk visits every message in the parse tree in field order, depth first.
// The visitor receives concrete pg_query types (*pg_query.SelectStmt,
// *pg_query.RangeVar, *pg_query.FuncCall, ...); returning false prunes the
// subtree. Traversal is generic over the protobuf schema so no node kind can
// be missed by a hand-written switch.
func Walk(root proto.Message, visit func(proto.Message) bool) {
	if root == nil {
		return
	}
	walkMessage(root.ProtoReflect(), visit)
}

func walkMessage(m protoreflect.Message, visit func(proto.Message) bool) {
	if !m.IsValid() {
		return
	}
	if !visit(m.Interface()) {
		return
	}
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsMap():
			// pg_query has no map fields
		case fd.IsList():
			if fd.Kind() == protoreflect.MessageKind {
				l := v.List()
				for i := 0; i < l.Len(); i++ {
					walkMessage(l.Get(i).Message(), visit)
				}
			}
		case fd.Kind() == protoreflect.MessageKind:
			walkMessage(v.Message(), visit)
		}
		return true
	})
}
