package repl_test

import (
	"bytes"
	"io"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/PokkeFe/os-memsim/internal/alloc"
	"github.com/PokkeFe/os-memsim/internal/mmu"
	"github.com/PokkeFe/os-memsim/internal/pagetable"
	"github.com/PokkeFe/os-memsim/internal/repl"
)

func newSession(pageSize, addressSpace uint32) (*repl.Repl, *bytes.Buffer) {
	pt, err := pagetable.New(pageSize)
	Expect(err).NotTo(HaveOccurred())
	orc := alloc.New(mmu.New(addressSpace), pt)
	buf := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	memory := make([]byte, 1<<20)
	return repl.New(orc, memory, buf, log), buf
}

func lastLine(buf *bytes.Buffer) string {
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	return lines[len(lines)-1]
}

var _ = Describe("Repl end-to-end scenarios", func() {
	It("creates a process and reports its pid", func() {
		session, out := newSession(1024, 1<<20)
		session.Execute("create 0 0")
		Expect(lastLine(out)).To(Equal("1024"))
	})

	It("pads an allocation across a page boundary rather than straddling it", func() {
		session, out := newSession(4, 4096)
		session.Execute("create 0 0")
		out.Reset()

		session.Execute("allocate 1024 a char 3")
		Expect(lastLine(out)).To(Equal("0"))

		session.Execute("allocate 1024 b int 1")
		Expect(lastLine(out)).To(Equal("4"))
	})

	It("round-trips a value through set and print", func() {
		session, out := newSession(1024, 1<<20)
		session.Execute("create 0 0")
		out.Reset()

		session.Execute("allocate 1024 x int 3")
		out.Reset()

		session.Execute("set 1024 x 0 10 20 30")
		session.Execute("print 1024:x")
		Expect(lastLine(out)).To(Equal("10, 20, 30"))
	})

	It("clamps a set command that overruns the variable silently", func() {
		session, out := newSession(1024, 1<<20)
		session.Execute("create 0 0")
		session.Execute("allocate 1024 x int 2")
		out.Reset()

		session.Execute("set 1024 x 0 1 2 3 4 5")
		session.Execute("print 1024:x")
		Expect(lastLine(out)).To(Equal("1, 2"))
	})

	It("reports a freed variable as not found", func() {
		session, out := newSession(1024, 1<<20)
		session.Execute("create 0 0")
		session.Execute("allocate 1024 a char 10")
		out.Reset()

		session.Execute("free 1024 a")
		session.Execute("print 1024:a")
		Expect(lastLine(out)).To(Equal("error: variable not found"))
	})

	It("removes a terminated process from the process listing", func() {
		session, out := newSession(1024, 1<<20)
		session.Execute("create 0 0")
		session.Execute("create 0 0")
		out.Reset()

		session.Execute("terminate 1024")
		session.Execute("print processes")
		Expect(strings.TrimSpace(out.String())).To(Equal("1025"))
	})

	It("reports allocation exceeding system memory", func() {
		session, out := newSession(1024, 1024)
		session.Execute("create 0 0")
		out.Reset()

		session.Execute("allocate 1024 huge char 2048")
		Expect(lastLine(out)).To(Equal("error: allocation exceeds system memory."))
	})

	It("rejects a duplicate variable name", func() {
		session, out := newSession(1024, 1<<20)
		session.Execute("create 0 0")
		session.Execute("allocate 1024 a char 1")
		out.Reset()

		session.Execute("allocate 1024 a char 1")
		Expect(lastLine(out)).To(Equal("error: variable already exists"))
	})

	It("exits the session loop on the exit command", func() {
		session, _ := newSession(1024, 1<<20)
		Expect(session.Execute("exit")).To(BeTrue())
	})
})
