package crypto

import "sync"

// wordlist is a deterministic, self-contained 2048-word list used by the
// recovery-phrase codec below. Rather than bundle the real BIP-39 English
// wordlist verbatim, the list is generated from two syllable tables
// (32 x 64 combinations) so every word is pronounceable and the whole
// list is reproducible from source instead of a large embedded asset.
var (
	wordlistOnce sync.Once
	wordlist     [2048]string
	wordIndex    map[string]int
)

var syllablesA = [32]string{
	"ba", "be", "bi", "bo", "bu", "ca", "ce", "ci",
	"co", "cu", "da", "de", "di", "do", "du", "fa",
	"fe", "fi", "fo", "fu", "ga", "ge", "gi", "go",
	"gu", "ha", "he", "hi", "ho", "hu", "ja", "ji",
}

var syllablesB = [64]string{
	"dar", "der", "dir", "dor", "dur", "lan", "len", "lin",
	"lon", "lun", "mar", "mer", "mir", "mor", "mur", "nat",
	"net", "nit", "not", "nut", "pal", "pel", "pil", "pol",
	"pul", "ran", "ren", "rin", "ron", "run", "sal", "sel",
	"sil", "sol", "sul", "tan", "ten", "tin", "ton", "tun",
	"val", "vel", "vil", "vol", "vul", "wan", "wen", "win",
	"won", "wun", "xan", "xen", "xin", "xon", "xun", "yan",
	"yen", "yin", "yon", "yun", "zan", "zen", "zin", "zon",
}

func ensureWordlist() {
	wordlistOnce.Do(func() {
		wordIndex = make(map[string]int, 2048)
		i := 0
		for _, a := range syllablesA {
			for _, b := range syllablesB {
				w := a + b
				wordlist[i] = w
				wordIndex[w] = i
				i++
			}
		}
	})
}
