// Package werr defines the closed error taxonomy shared by every
// component that crosses the RPC boundary. A Kind survives
// serialization (pkg/wire encodes it as a uint16 discriminant) where a
// bare error would not.
package werr

// Kind is a closed enum of error variants. The numeric values are part
// of the wire format: never reorder or remove an entry, only append.
type Kind uint16

const (
	KindNone Kind = iota

	// Capacity/shape
	KindInsufficientCapacity
	KindInvalidInputSize
	KindInvalidArgument
	KindUnsupportedFormat
	KindUnknownIdentifier
	KindIncompatibleObject
	KindIncompatibleArguments
	KindInOutBuffersIntersect
	KindAboveBoundary
	KindUnexpectedValue
	KindEmptyContainer
	KindIncompleteArgState

	// Resource
	KindBadAlloc
	KindBusyResource
	KindUnreservedResource
	KindInsufficientResource
	KindResourceFault
	KindContentRestrictions
	KindContentDuplication

	// State
	KindUninitializedContext
	KindInvalidUsageOrder
	KindLogicFault
	KindBadObjectReference
	KindUsageViolation

	// Access
	KindAccessViolation

	// RPC
	KindRpcInvalidArgument
	KindRpcInvalidInputSize
	KindRpcInsufficientCapacity
	KindRpcUnknownTask
	KindRpcUnknownObjectIdentifier
	KindRpcRuntimeFault

	// Runtime
	KindRuntimeFault
	KindUnsupported
)

var kindNames = map[Kind]string{
	KindNone:                       "none",
	KindInsufficientCapacity:       "InsufficientCapacity",
	KindInvalidInputSize:           "InvalidInputSize",
	KindInvalidArgument:            "InvalidArgument",
	KindUnsupportedFormat:          "UnsupportedFormat",
	KindUnknownIdentifier:          "UnknownIdentifier",
	KindIncompatibleObject:         "IncompatibleObject",
	KindIncompatibleArguments:      "IncompatibleArguments",
	KindInOutBuffersIntersect:      "InOutBuffersIntersect",
	KindAboveBoundary:              "AboveBoundary",
	KindUnexpectedValue:            "UnexpectedValue",
	KindEmptyContainer:             "EmptyContainer",
	KindIncompleteArgState:         "IncompleteArgState",
	KindBadAlloc:                   "BadAlloc",
	KindBusyResource:               "BusyResource",
	KindUnreservedResource:         "UnreservedResource",
	KindInsufficientResource:       "InsufficientResource",
	KindResourceFault:              "ResourceFault",
	KindContentRestrictions:        "ContentRestrictions",
	KindContentDuplication:         "ContentDuplication",
	KindUninitializedContext:       "UninitializedContext",
	KindInvalidUsageOrder:          "InvalidUsageOrder",
	KindLogicFault:                 "LogicFault",
	KindBadObjectReference:         "BadObjectReference",
	KindUsageViolation:             "UsageViolation",
	KindAccessViolation:            "AccessViolation",
	KindRpcInvalidArgument:         "RpcInvalidArgument",
	KindRpcInvalidInputSize:        "RpcInvalidInputSize",
	KindRpcInsufficientCapacity:    "RpcInsufficientCapacity",
	KindRpcUnknownTask:             "RpcUnknownTask",
	KindRpcUnknownObjectIdentifier: "RpcUnknownObjectIdentifier",
	KindRpcRuntimeFault:            "RpcRuntimeFault",
	KindRuntimeFault:               "RuntimeFault",
	KindUnsupported:                "Unsupported",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UnknownKind"
}
