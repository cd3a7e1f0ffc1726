// Package progress содержит доменную модель прогресса пользователя.
//
// Пакет определяет:
//
//   - Avatar - запись прогресса пользователя (XP, уровень, навыки, валюта, достижения, серия)
//   - LevelCurve - чистую функцию XP → уровень (LevelForXP, Threshold)
//   - StreakTracker - правила продолжения и сброса серии (RecordActivity)
//   - Skill и Source - перечисления навыков и источников активности
//   - Store - контракт атомарного хранилища аватаров
//
// # Инварианты
//
//  1. TotalXP только растёт и равен сумме всех начислений из журнала
//  2. Уровень всегда выводится из TotalXP, сохранённое значение - лишь кэш
//  3. Список достижений только пополняется
//
// # Пример
//
//	avatar := NewAvatar("user-1", time.Now())
//	avatar.GrantXP(50, SkillMathematics, SourceQuiz, time.Now())
//	avatar.GrantXP(60, SkillMathematics, SourceQuiz, time.Now())
//	avatar.Level // 2
package progress
