package characters

import "storyreel-server/modules/common/model"

// Merge - 세그먼트별 캐릭터 목록을 전체 roster로 병합한다.
// 중복 기준은 Name 완전 일치. 먼저 등장한 캐릭터가 이기고,
// 늦게 들어온 동명 캐릭터는 ID/traits까지 통째로 버려진다 (필드 병합 없음).
// 순서: 기존 roster 순서 뒤에 새 캐릭터가 입력 순서대로 붙는다.
// 같은 입력을 두 번 병합해도 결과가 같다 (멱등).
func Merge(existingRoster, newCharacters []model.Character) []model.Character {
	merged := make([]model.Character, 0, len(existingRoster)+len(newCharacters))
	seen := make(map[string]bool, len(existingRoster)+len(newCharacters))

	for _, c := range existingRoster {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		merged = append(merged, c)
	}

	for _, c := range newCharacters {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		merged = append(merged, c)
	}

	return merged
}

// MergeAll - 처리된 모든 세그먼트의 캐릭터를 하나의 roster로 합친다.
// Finished 전이 시점에 호출된다.
func MergeAll(processed []model.ProcessedSegment) []model.Character {
	roster := []model.Character{}
	for _, seg := range processed {
		roster = Merge(roster, seg.Characters)
	}
	return roster
}
