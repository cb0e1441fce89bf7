// Package corevm implements the bytecode preparation and dispatch core of
// the Ruby-family virtual machine: the Preparer that rewrites a compiled
// code's symbolic opcodes into a dispatch-ready machine code stream, the
// Dispatcher that executes that stream, the call-site and inline-cache
// protocol that accelerates message sends, the constant cache, and the
// JIT compile request queue.
//
// The object model, garbage collector, parser, and JIT code generator are
// external collaborators; this package only reaches them through narrow
// seams (PrimitiveRegistry, ClassTable, and the JIT queue's Dequeue and
// Retire). The JIT queue's Enable only toggles a flag; it does not
// start a compiler.
package corevm
