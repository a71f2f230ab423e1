package registry

// Well-known structural operator types. The reconciler applies special
// propagation rules to these; everything else is plain table dispatch.
const (
	TypeContainer    = "ContainerOp"
	TypeGraphInput   = "GraphInputOp"
	TypeGraphOutput  = "GraphOutputOp"
	TypeForLoopBegin = "ForLoopBeginOp"
	TypeForLoopEnd   = "ForLoopEndOp"
)
