package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func compileOK(t *testing.T, src string) string {
	t.Helper()
	res, err := Compile(src, Options{Filename: "t.c", Optimize: true})
	require.NoError(t, err)
	require.NotNil(t, res.Reporter)
	require.False(t, res.Reporter.HasErrors())
	require.NotEmpty(t, res.Asm)
	return res.Asm
}

func TestCompileHelloWorld(t *testing.T) {
	asm := compileOK(t, `int main(){ printf("hello\n"); return 0; }`)
	require.Contains(t, asm, ".data")
	require.Contains(t, asm, ".text")
	require.Contains(t, asm, "__FUN_main:")
	require.Contains(t, asm, "__END:")
}

func TestCompileSumOfTwoReadInts(t *testing.T) {
	asm := compileOK(t, `int main(){int a;int b;a=getint();b=getint();printf("%d\n",a+b);return 0;}`)
	require.Contains(t, asm, "syscall")
}

func TestCompileWhileLoopAndRecursion(t *testing.T) {
	compileOK(t, `
		int fib(int n){
			if (n <= 1) return n;
			return fib(n - 1) + fib(n - 2);
		}
		int main(){ return fib(10); }
	`)
}

func TestCompile2DArray(t *testing.T) {
	compileOK(t, `
		int a[2][3] = {{1,2,3},{4,5,6}};
		int main(){
			int i;
			int j;
			int s;
			i = 0;
			s = 0;
			while (i < 2) {
				j = 0;
				while (j < 3) {
					s = s + a[i][j];
					j = j + 1;
				}
				i = i + 1;
			}
			return s;
		}
	`)
}

func TestCompileWithOptimizationDisabledStillProducesAsm(t *testing.T) {
	res, err := Compile(`int main(){ return 1 + 2; }`, Options{Filename: "t.c", Optimize: false})
	require.NoError(t, err)
	require.False(t, res.Reporter.HasErrors())
	require.NotEmpty(t, res.Asm)
}

func TestCompileSourceErrorSkipsEmission(t *testing.T) {
	res, err := Compile(`int main(){ return x; }`, Options{Filename: "t.c", Optimize: true})
	require.NoError(t, err)
	require.True(t, res.Reporter.HasErrors())
	require.Empty(t, res.Asm)
}

func TestCompileWritesDebugDumps(t *testing.T) {
	dir := t.TempDir()
	_, err := Compile(`int main(){ return 0; }`, Options{Filename: "t.c", Optimize: true, DumpDir: dir})
	require.NoError(t, err)

	for _, name := range []string{"ir.txt", "ir2.txt", "mr.asm", "mr2.asm"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NotEmpty(t, data)
	}
}

func TestCompileProgressBannerReportsEachPass(t *testing.T) {
	var b strings.Builder
	_, err := Compile(`int main(){ return 0; }`, Options{Filename: "t.c", Optimize: true, Progress: &b})
	require.NoError(t, err)
	require.Contains(t, b.String(), "build_loop")
}

func TestCompileParseFailureReturnsError(t *testing.T) {
	_, err := Compile(`int main(){ return 0 `, Options{Filename: "t.c", Optimize: true})
	require.Error(t, err)
}
