package session

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// 随机显示名由形容词+动物拼成，例如 HappyPanda、CleverFox。
var (
	nameAdjectives = []string{"Happy", "Clever", "Swift", "Bright", "Cool", "Smart", "Quick", "Calm", "Bold", "Wise"}
	nameAnimals    = []string{"Panda", "Tiger", "Eagle", "Dolphin", "Fox", "Wolf", "Bear", "Hawk", "Lion", "Owl"}
)

func randomName() string {
	return nameAdjectives[rand.IntN(len(nameAdjectives))] + nameAnimals[rand.IntN(len(nameAnimals))]
}

// uniqueNameLocked 对重名成员追加数字后缀：Sam、Sam(2)、Sam(3)。
func (s *Session) uniqueNameLocked(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = randomName()
	}
	taken := make(map[string]struct{}, len(s.users))
	for _, u := range s.users {
		taken[u.Name] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s(%d)", base, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
