// Package repl is the interactive command surface described in spec
// §6: a tokenizer, a command dispatcher over the allocation
// orchestrator, a typed-value writer into the physical memory buffer,
// and the human-readable printers. None of it participates in the
// allocation invariants — its only contract with the core is calling
// the operations internal/alloc, internal/mmu, and internal/pagetable
// define and rendering the values they return.
package repl

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PokkeFe/os-memsim/internal/alloc"
	"github.com/PokkeFe/os-memsim/internal/vaddr"
)

// Repl drives one simulator session: a shared physical memory buffer,
// the allocation orchestrator over it, and the stream commands are
// echoed to.
type Repl struct {
	Orc    *alloc.Orchestrator
	Memory []byte
	Out    io.Writer
	Log    *slog.Logger
}

// New builds a Repl over an existing orchestrator and physical memory
// buffer.
func New(orc *alloc.Orchestrator, memory []byte, out io.Writer, log *slog.Logger) *Repl {
	return &Repl{Orc: orc, Memory: memory, Out: out, Log: log}
}

// Banner is the startup message printed before the first prompt,
// restored from the original C++ printStartMessage.
func Banner(pageSize uint32) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome to the Memory Allocation Simulator! Using a page size of %d bytes.\n", pageSize)
	b.WriteString("Commands:\n")
	b.WriteString("  * create <text_size> <data_size> (initializes a new process)\n")
	b.WriteString("  * allocate <PID> <var_name> <data_type> <number_of_elements> (allocated memory on the heap)\n")
	b.WriteString("  * set <PID> <var_name> <offset> <value_0> <value_1> <value_2> ... <value_N> (set the value for a variable)\n")
	b.WriteString("  * free <PID> <var_name> (deallocate memory on the heap that is associated with <var_name>)\n")
	b.WriteString("  * terminate <PID> (kill the specified process)\n")
	b.WriteString("  * print <object> (prints data)\n")
	b.WriteString("    * If <object> is \"mmu\", print the MMU memory table\n")
	b.WriteString("    * if <object> is \"page\", print the page table\n")
	b.WriteString("    * if <object> is \"processes\", print a list of PIDs for processes that are still running\n")
	b.WriteString("    * if <object> is a \"<PID>:<var_name>\", print the value of the variable for that process\n")
	return b.String()
}

// Execute runs one command line and reports whether the session
// should end (the "exit" command). It holds the orchestrator's write
// lock for the full command, so a debug-server request reading Mmu or
// Pages concurrently never observes a partially applied command.
func (r *Repl) Execute(line string) bool {
	tokens := Tokenize(line)
	if len(tokens) == 0 {
		return false
	}

	r.Orc.Lock()
	defer r.Orc.Unlock()

	switch tokens[0] {
	case "create":
		r.cmdCreate(tokens)
	case "allocate":
		r.cmdAllocate(tokens)
	case "set":
		r.cmdSet(tokens)
	case "free":
		r.cmdFree(tokens)
	case "terminate":
		r.cmdTerminate(tokens)
	case "print":
		r.cmdPrint(tokens)
	case "exit":
		return true
	default:
		fmt.Fprintln(r.Out, "error: command not recognized")
	}
	return false
}

func (r *Repl) cmdCreate(tokens []string) {
	if len(tokens) < 3 {
		fmt.Fprintln(r.Out, "error: create requires <text_size> <data_size>")
		return
	}
	textSize, err1 := strconv.ParseUint(tokens[1], 10, 32)
	dataSize, err2 := strconv.ParseUint(tokens[2], 10, 32)
	if err1 != nil || err2 != nil {
		fmt.Fprintln(r.Out, "error: create arguments must be integers")
		return
	}

	pid, err := r.Orc.CreateProcessWithBootstrap(uint32(textSize), uint32(dataSize))
	if err != nil {
		r.Log.Error("bootstrap failed", "error", err)
		fmt.Fprintln(r.Out, allocErrorMessage(err))
		return
	}
	fmt.Fprintf(r.Out, "%d\n", pid)
}

func (r *Repl) cmdAllocate(tokens []string) {
	if len(tokens) < 5 {
		fmt.Fprintln(r.Out, "error: allocate requires <pid> <name> <type> <n>")
		return
	}
	pid, err := strconv.ParseUint(tokens[1], 10, 32)
	if err != nil {
		fmt.Fprintln(r.Out, "error: pid must be an integer")
		return
	}
	name := tokens[2]
	t, ok := vaddr.ParseDataType(tokens[3])
	if !ok {
		fmt.Fprintln(r.Out, "error: unknown data type")
		return
	}
	n, err := strconv.ParseUint(tokens[4], 10, 32)
	if err != nil {
		fmt.Fprintln(r.Out, "error: element count must be an integer")
		return
	}

	addr, err := r.Orc.Allocate(uint32(pid), name, t, uint32(n))
	if err != nil {
		fmt.Fprintln(r.Out, allocErrorMessage(err))
		return
	}
	fmt.Fprintf(r.Out, "%d\n", addr)
}

func (r *Repl) cmdSet(tokens []string) {
	if len(tokens) < 4 {
		fmt.Fprintln(r.Out, "error: set requires <pid> <name> <offset> <v0> [v1 ...]")
		return
	}
	pid, err := strconv.ParseUint(tokens[1], 10, 32)
	if err != nil {
		fmt.Fprintln(r.Out, "error: pid must be an integer")
		return
	}
	name := tokens[2]
	offset, err := strconv.ParseUint(tokens[3], 10, 32)
	if err != nil {
		fmt.Fprintln(r.Out, "error: offset must be an integer")
		return
	}

	if !r.Orc.Mmu.ProcessExists(uint32(pid)) {
		fmt.Fprintln(r.Out, "error: process not found")
		return
	}
	v, ok := r.Orc.Mmu.GetVariable(uint32(pid), name)
	if !ok {
		fmt.Fprintln(r.Out, "error: variable not found")
		return
	}

	elementSize := v.Type.Size()
	numElements := v.Size / elementSize
	values := tokens[4:]

	for i, tok := range values {
		index := uint64(offset) + uint64(i)
		if index >= uint64(numElements) {
			break // clamp silently, matching the original launchSetVariable
		}
		data, err := encodeValue(v.Type, tok)
		if err != nil {
			fmt.Fprintf(r.Out, "error: %v\n", err)
			return
		}
		elementAddr := v.VirtualAddress + uint32(index)*elementSize
		physAddr := r.Orc.Pages.GetPhysicalAddress(uint32(pid), elementAddr)
		if physAddr < 0 {
			r.Log.Error("set: page not resident", "pid", pid, "name", name, "index", index)
			continue
		}
		copy(r.Memory[physAddr:physAddr+int64(elementSize)], data)
	}
}

func (r *Repl) cmdFree(tokens []string) {
	if len(tokens) < 3 {
		fmt.Fprintln(r.Out, "error: free requires <pid> <name>")
		return
	}
	pid, err := strconv.ParseUint(tokens[1], 10, 32)
	if err != nil {
		fmt.Fprintln(r.Out, "error: pid must be an integer")
		return
	}
	if err := r.Orc.Free(uint32(pid), tokens[2]); err != nil {
		fmt.Fprintln(r.Out, allocErrorMessage(err))
	}
}

func (r *Repl) cmdTerminate(tokens []string) {
	if len(tokens) < 2 {
		fmt.Fprintln(r.Out, "error: terminate requires <pid>")
		return
	}
	pid, err := strconv.ParseUint(tokens[1], 10, 32)
	if err != nil {
		fmt.Fprintln(r.Out, "error: pid must be an integer")
		return
	}
	if err := r.Orc.Terminate(uint32(pid)); err != nil {
		fmt.Fprintln(r.Out, allocErrorMessage(err))
	}
}

func (r *Repl) cmdPrint(tokens []string) {
	if len(tokens) < 2 {
		fmt.Fprintln(r.Out, "error: print requires an argument")
		return
	}
	object := tokens[1]

	switch object {
	case "mmu":
		r.printMmu()
	case "page":
		r.printPage()
	case "processes":
		r.printProcesses()
	default:
		r.printVariable(object)
	}
}

func (r *Repl) printMmu() {
	fmt.Fprintln(r.Out, " PID  | Variable Name | Virtual Addr | Size")
	fmt.Fprintln(r.Out, "------+---------------+--------------+------------")
	for _, line := range r.Orc.Mmu.Print() {
		fmt.Fprintln(r.Out, line)
	}
}

func (r *Repl) printPage() {
	fmt.Fprintln(r.Out, " PID  | Page Number | Frame Number")
	fmt.Fprintln(r.Out, "------+-------------+--------------")
	for _, line := range r.Orc.Pages.Print() {
		fmt.Fprintln(r.Out, line)
	}
}

func (r *Repl) printProcesses() {
	for _, pid := range r.Orc.Mmu.PIDs() {
		fmt.Fprintf(r.Out, "%d\n", pid)
	}
}

func (r *Repl) printVariable(object string) {
	delim := strings.Index(object, ":")
	if delim < 0 {
		fmt.Fprintln(r.Out, "error: command not recognized")
		return
	}
	pid, err := strconv.ParseUint(object[:delim], 10, 32)
	if err != nil {
		fmt.Fprintln(r.Out, "error: pid must be an integer")
		return
	}
	name := object[delim+1:]

	parts, err := r.Elements(uint32(pid), name)
	if err != nil {
		fmt.Fprintln(r.Out, allocErrorMessage(err))
		return
	}
	fmt.Fprintln(r.Out, strings.Join(parts, ", "))
}

// Elements renders the first four element values of a variable (plus
// a "... [N items]" marker if there are more), matching what
// "print <pid>:<name>" writes to the console. It is also used by the
// debug HTTP server to serve the same view as JSON.
func (r *Repl) Elements(pid uint32, name string) ([]string, error) {
	if !r.Orc.Mmu.ProcessExists(pid) {
		return nil, alloc.ErrProcessNotFound
	}
	v, ok := r.Orc.Mmu.GetVariable(pid, name)
	if !ok {
		return nil, alloc.ErrVariableNotFound
	}

	elementSize := v.Type.Size()
	numElements := int(v.Size / elementSize)

	var parts []string
	for i := 0; i < numElements; i++ {
		if i >= 4 {
			parts = append(parts, fmt.Sprintf("... [%d items]", numElements))
			break
		}
		elementAddr := v.VirtualAddress + uint32(i)*elementSize
		physAddr := r.Orc.Pages.GetPhysicalAddress(pid, elementAddr)
		if physAddr < 0 {
			continue
		}
		data := r.Memory[physAddr : physAddr+int64(elementSize)]
		parts = append(parts, decodeValue(v.Type, data))
	}
	return parts, nil
}

func allocErrorMessage(err error) string {
	switch {
	case errors.Is(err, alloc.ErrProcessNotFound):
		return "error: process not found"
	case errors.Is(err, alloc.ErrVariableNotFound):
		return "error: variable not found"
	case errors.Is(err, alloc.ErrVariableExists):
		return "error: variable already exists"
	case errors.Is(err, alloc.ErrAllocationExceedsSpace):
		return "error: allocation exceeds system memory."
	default:
		return fmt.Sprintf("error: %v", err)
	}
}
